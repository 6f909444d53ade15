package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rzbill/courier/internal/envelope"
)

// sseSink implements messagesvc.SubscribeSink for Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send writes e as one "data:" event.
func (s sseSink) Send(e envelope.StoredEnvelope) error {
	b, err := json.Marshal(fromStored(e))
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// sendError writes a terminal "error" event once streaming has started.
func (s sseSink) sendError(err error) {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	_, _ = fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", b)
	_ = s.Flush()
}
