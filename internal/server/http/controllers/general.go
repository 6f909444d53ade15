package controllers

import (
	"net/http"

	messagesvc "github.com/rzbill/courier/internal/services/messages"
)

// GeneralController handles health, topic listing and instance stats.
type GeneralController struct {
	svc *messagesvc.Service
}

// NewGeneralController creates a new general controller.
func NewGeneralController(svc *messagesvc.Service) *GeneralController {
	return &GeneralController{svc: svc}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/topics", c.handleTopics)
	mux.HandleFunc("/v1/stats", c.handleStats)
}

// handleHealth returns 200 {"status":"ok"} when storage is usable and 503
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.svc.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleTopics lists every topic, or one topic's stats with ?topic=.
func (c *GeneralController) handleTopics(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("topic"); t != "" {
		info, err := c.svc.TopicStats(r.Context(), t)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, fromTopic(info))
		return
	}
	list, err := c.svc.Topics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]topicJSON, len(list))
	for i, t := range list {
		out[i] = fromTopic(t)
	}
	writeJSON(w, map[string]any{"topics": out})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := c.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, st)
}
