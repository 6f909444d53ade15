package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/metrics"
	"github.com/rzbill/courier/internal/runtime"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

func newServer(t *testing.T) (*Server, *messagesvc.Service) {
	t.Helper()
	logger, err := logpkg.Build(&logpkg.Config{Level: "error", Format: "text", Outputs: []string{"null"}})
	require.NoError(t, err)
	m := metrics.New()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default(), Logger: logger, Metrics: m})
	require.NoError(t, err)
	svc, err := messagesvc.New(rt, messagesvc.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.Close()
		_ = rt.Close()
	})
	return New(svc, m, logger), svc
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestPublishAndQueryHandlers(t *testing.T) {
	s, _ := newServer(t)
	w := do(t, s, http.MethodPost, "/v1/publish",
		`{"envelopes":[{"topic":"A","timestamp_ns":1,"message":"bTE="},{"topic":"A","timestamp_ns":2,"message":"bTI="}]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String(), "the ack carries no store positions")

	w = do(t, s, http.MethodPost, "/v1/query", `{"topic":"A","limit":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var page1 queryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	require.Len(t, page1.Envelopes, 1)
	assert.Equal(t, "m1", string(page1.Envelopes[0].Message))
	require.NotEmpty(t, page1.NextCursor)

	body, _ := json.Marshal(map[string]any{"topic": "A", "limit": 1, "start_cursor": page1.NextCursor})
	w = do(t, s, http.MethodPost, "/v1/query", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	var page2 queryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	require.Len(t, page2.Envelopes, 1)
	assert.Equal(t, "m2", string(page2.Envelopes[0].Message))
	assert.Empty(t, page2.NextCursor)
}

func TestHandlerErrors(t *testing.T) {
	s, _ := newServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/publish", `{"envelopes":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/publish", `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/v1/publish", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/query", `{"topic":"A","start_cursor":"AAAA"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/query", `{"topic":"A","direction":"sideways"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/batch-query", `{"queries":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/subscribe", "").Code)
}

func TestBatchQueryHandler(t *testing.T) {
	s, svc := newServer(t)
	_, err := svc.Publish(context.Background(), []envelope.Envelope{
		{Topic: "a", TimestampNs: 1, Message: []byte("a1")},
		{Topic: "b", TimestampNs: 2, Message: []byte("b1")},
	})
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/v1/batch-query", `{"queries":[{"topic":"b"},{"topic":""},{"topic":"a"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Results []queryResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Results, 3)
	assert.Equal(t, "b1", string(out.Results[0].Envelopes[0].Message))
	assert.NotEmpty(t, out.Results[1].Error)
	assert.Equal(t, "a1", string(out.Results[2].Envelopes[0].Message))
}

func TestBatchQueryBadDirectionStaysInItsSlot(t *testing.T) {
	s, svc := newServer(t)
	_, err := svc.Publish(context.Background(), []envelope.Envelope{{Topic: "a", TimestampNs: 1, Message: []byte("a1")}})
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/v1/batch-query", `{"queries":[{"topic":"a"},{"topic":"a","direction":"sideways"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Results []queryResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Results, 2)
	assert.Empty(t, out.Results[0].Error)
	assert.Equal(t, []string{"a1"}, bodies(out.Results[0]))
	assert.Contains(t, out.Results[1].Error, "sideways")
	assert.Empty(t, out.Results[1].Envelopes)

	w = do(t, s, http.MethodPost, "/v1/batch-query", `{"queries":[{"topic":"a","direction":"up"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.NotEmpty(t, out.Results[0].Error)
}

func TestMergedTopicQueryHandler(t *testing.T) {
	s, svc := newServer(t)
	_, err := svc.Publish(context.Background(), []envelope.Envelope{
		{Topic: "a", TimestampNs: 1, Message: []byte("a1")},
		{Topic: "b", TimestampNs: 2, Message: []byte("b2")},
		{Topic: "a", TimestampNs: 3, Message: []byte("a3")},
	})
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/v1/query", `{"topics":["a","b"],"limit":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	var page1 queryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	assert.Equal(t, []string{"a1", "b2"}, bodies(page1))
	require.NotEmpty(t, page1.NextCursor)

	body, _ := json.Marshal(map[string]any{"topics": []string{"a", "b"}, "start_cursor": page1.NextCursor})
	w = do(t, s, http.MethodPost, "/v1/query", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	var page2 queryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	assert.Equal(t, []string{"a3"}, bodies(page2))
	assert.Empty(t, page2.NextCursor)
}

func TestTopicsStatsAndMetrics(t *testing.T) {
	s, svc := newServer(t)
	_, err := svc.Publish(context.Background(), []envelope.Envelope{{Topic: "a", TimestampNs: 1, Message: []byte("xyz")}})
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/v1/topics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"topic":"a"`)

	w = do(t, s, http.MethodGet, "/v1/topics?topic=a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bytes":3`)
	assert.NotContains(t, strings.ToLower(w.Body.String()), "seq")

	w = do(t, s, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"topics":1`)
	assert.NotContains(t, w.Body.String(), "seq")

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "courier_published_envelopes_total 1")
}

func TestSubscribeSSE(t *testing.T) {
	s, svc := newServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/subscribe?topic=b", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		st, err := svc.Stats(ctx)
		return err == nil && st.Subscriptions.Topics["b"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	_, err = svc.Publish(ctx, []envelope.Envelope{
		{Topic: "a", TimestampNs: 1, Message: []byte("skip")},
		{Topic: "b", TimestampNs: 2, Message: []byte("hello")},
	})
	require.NoError(t, err)

	line, err := readDataLine(bufio.NewReader(resp.Body))
	require.NoError(t, err)
	var got envelopeResult
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "b", got.Topic)
	assert.Equal(t, "hello", string(got.Message))
	assert.NotContains(t, line, "seq")
}

func readDataLine(r *bufio.Reader) (string, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: ")), nil
		}
	}
}

type envelopeResult struct {
	Topic       string `json:"topic"`
	TimestampNs uint64 `json:"timestamp_ns"`
	Message     []byte `json:"message"`
}

type queryResult struct {
	Envelopes  []envelopeResult `json:"envelopes"`
	NextCursor []byte           `json:"next_cursor"`
	Error      string           `json:"error"`
}

func bodies(r queryResult) []string {
	out := make([]string, len(r.Envelopes))
	for i, e := range r.Envelopes {
		out[i] = string(e.Message)
	}
	return out
}
