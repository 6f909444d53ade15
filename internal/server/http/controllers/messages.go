package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/courier/internal/envelope"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
)

// maxFilterLen bounds CEL filters accepted on the query string.
const maxFilterLen = 2048

// MessagesController exposes the MessageApi over JSON and SSE.
type MessagesController struct {
	svc *messagesvc.Service
}

// NewMessagesController creates a new messages controller.
func NewMessagesController(svc *messagesvc.Service) *MessagesController {
	return &MessagesController{svc: svc}
}

// RegisterRoutes registers the message routes with the given mux.
func (c *MessagesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/publish", c.handlePublish)
	mux.HandleFunc("/v1/query", c.handleQuery)
	mux.HandleFunc("/v1/batch-query", c.handleBatchQuery)
	mux.HandleFunc("/v1/subscribe", c.handleSubscribeSSE)
	mux.HandleFunc("/v1/subscribe-all", c.handleSubscribeAllSSE)
}

func (c *MessagesController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	start := time.Now()
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	envs := make([]envelope.Envelope, len(req.Envelopes))
	for i, e := range req.Envelopes {
		envs[i] = envelope.Envelope{Topic: e.Topic, TimestampNs: e.TimestampNs, Message: e.Message}
	}
	if _, err := c.svc.Publish(r.Context(), envs); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("X-Publish-Latency-Ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(publishResp{})
}

func (c *MessagesController) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.svc.Query(r.Context(), spec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, fromResult(res))
}

func (c *MessagesController) handleBatchQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req batchQueryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.svc.Limits().ValidateBatchSize(len(req.Queries)); err != nil {
		writeServiceError(w, err)
		return
	}

	// A query that does not convert keeps its error in its own slot; the
	// rest still run.
	out := batchQueryResp{Results: make([]queryResp, len(req.Queries))}
	specs := make([]envelope.QuerySpec, 0, len(req.Queries))
	index := make([]int, 0, len(req.Queries))
	for i, q := range req.Queries {
		spec, err := q.spec()
		if err != nil {
			out.Results[i] = errorResult(err)
			continue
		}
		specs = append(specs, spec)
		index = append(index, i)
	}
	if len(specs) > 0 {
		results, err := c.svc.BatchQuery(r.Context(), specs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for j, br := range results {
			if br.Err != nil {
				out.Results[index[j]] = errorResult(br.Err)
				continue
			}
			out.Results[index[j]] = fromResult(br.Result)
		}
	}
	writeJSON(w, out)
}

// handleSubscribeSSE streams envelopes for ?topic=a&topic=b as SSE.
func (c *MessagesController) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	c.streamSSE(w, r, r.URL.Query()["topic"], false)
}

// handleSubscribeAllSSE streams every envelope as SSE.
func (c *MessagesController) handleSubscribeAllSSE(w http.ResponseWriter, r *http.Request) {
	c.streamSSE(w, r, nil, true)
}

func (c *MessagesController) streamSSE(w http.ResponseWriter, r *http.Request, topics []string, all bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	// Reject bad topics while a status code can still be sent.
	if !all {
		if err := c.svc.Limits().ValidateTopics(topics); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	var opts messagesvc.SubscribeOptions
	if filter := r.URL.Query().Get("filter"); filter != "" {
		if len(filter) > maxFilterLen {
			writeError(w, http.StatusBadRequest, "Filter too long")
			return
		}
		opts.Filter = filter
	}
	opts.Limit = parseLimit(r.URL.Query().Get("limit"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w, r: r}
	_ = sink.Flush()

	if err := c.svc.StreamSubscribe(r.Context(), topics, all, opts, sink); err != nil {
		sink.sendError(err)
	}
}
