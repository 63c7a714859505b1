package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSESink writes text/event-stream frames: named update and error events,
// and comment lines as keep-alives.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sends the stream headers. It fails when w cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Update(_ context.Context, payload []byte) error {
	return s.event("update", payload)
}

func (s *SSESink) Error(_ context.Context, msg ErrorMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.event("error", data)
}

func (s *SSESink) KeepAlive(context.Context) error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) event(name string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
