package ratelimit

import (
	"context"
	"log/slog"

	"github.com/playperu/livetrivia/internal/metrics"
)

// Guard applies a Limiter to one named action and fails open: store errors
// are logged and counted, and the request is allowed.
type Guard struct {
	limiter *Limiter
	action  string
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Recorder
}

func NewGuard(l *Limiter, action string, cfg Config, logger *slog.Logger, rec metrics.Recorder) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Guard{limiter: l, action: action, cfg: cfg, logger: logger, metrics: rec}
}

// Key scopes an identity to this guard's action.
func (g *Guard) Key(parts ...string) string {
	key := g.action
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Allow checks key, treating a store failure as allowed.
func (g *Guard) Allow(ctx context.Context, key string) Decision {
	d, err := g.limiter.Check(ctx, key, g.cfg)
	if err != nil {
		g.logger.WarnContext(ctx, "rate limit check failed, allowing", "action", g.action, "error", err)
		g.metrics.RateLimitStoreError("check")
		return Decision{Allowed: true}
	}
	if !d.Allowed {
		g.metrics.RateLimitDenied(g.action)
	}
	return d
}

// Hit records an attempt; failures are logged and swallowed.
func (g *Guard) Hit(ctx context.Context, key string) {
	if err := g.limiter.RecordHit(ctx, key, g.cfg); err != nil {
		g.logger.WarnContext(ctx, "rate limit hit not recorded", "action", g.action, "error", err)
		g.metrics.RateLimitStoreError("hit")
	}
}

// Reset clears key; failures are logged and swallowed.
func (g *Guard) Reset(ctx context.Context, key string) {
	if err := g.limiter.Clear(ctx, key); err != nil {
		g.logger.WarnContext(ctx, "rate limit clear failed", "action", g.action, "error", err)
		g.metrics.RateLimitStoreError("clear")
	}
}
