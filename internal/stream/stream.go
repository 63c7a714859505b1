// Package stream pushes event payloads to one connected client. Each
// connection rebuilds its payload on a fixed tick, or earlier when nudged,
// and only sends it when the serialised bytes changed since the last push.
// Connections share nothing with each other.
package stream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/trivia"
)

// DefaultInterval is the rebuild period when none is configured.
const DefaultInterval = 2 * time.Second

// ErrorMessage is the body of an error notification.
type ErrorMessage struct {
	Message string      `json:"message"`
	Code    trivia.Code `json:"code"`
	Status  int         `json:"status"`
}

// Sink is a transport for one connection.
type Sink interface {
	Update(ctx context.Context, payload []byte) error
	Error(ctx context.Context, msg ErrorMessage) error
	KeepAlive(ctx context.Context) error
}

// BuildFunc produces the serialised payload for the connection.
type BuildFunc func(ctx context.Context) ([]byte, error)

type Config struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Wake     <-chan struct{} // optional; each receive triggers an immediate rebuild
	Logger   *slog.Logger
	Metrics  metrics.Recorder
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
}

// Run serves one connection until ctx is done, the sink fails, or the event
// disappears. In the last case an error notification is sent first and Run
// returns nil.
func Run(ctx context.Context, cfg Config, build BuildFunc, sink Sink) error {
	cfg.defaults()

	ticker := cfg.Clock.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var last []byte
	step := func() (done bool, err error) {
		payload, err := build(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			var te *trivia.Error
			if errors.As(err, &te) && te.Code == trivia.CodeNotFound {
				cfg.Metrics.StreamPush("error")
				return true, sink.Error(ctx, ErrorMessage{Message: te.Message, Code: te.Code, Status: te.Status})
			}
			// Transient failures keep the connection; the next tick retries.
			cfg.Logger.WarnContext(ctx, "building stream payload", "error", err)
			cfg.Metrics.StreamPush("keepalive")
			return false, sink.KeepAlive(ctx)
		}
		if last != nil && bytes.Equal(payload, last) {
			cfg.Metrics.StreamPush("keepalive")
			return false, sink.KeepAlive(ctx)
		}
		last = payload
		cfg.Metrics.StreamPush("update")
		return false, sink.Update(ctx, payload)
	}

	for {
		done, err := step()
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		case <-cfg.Wake:
		}
	}
}
