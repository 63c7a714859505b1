// Package ratelimit implements fixed-window attempt counting with lockout.
//
// Check never counts an attempt; callers record a hit on every rejected or
// suspicious request. Once a key reaches MaxAttempts inside its window it is
// blocked for BlockSeconds, independent of later window resets.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config is one action's thresholds.
type Config struct {
	MaxAttempts   int `env:"MAX_ATTEMPTS"`
	WindowSeconds int `env:"WINDOW_SECONDS"`
	BlockSeconds  int `env:"BLOCK_SECONDS"`
}

func (c Config) window() time.Duration { return time.Duration(c.WindowSeconds) * time.Second }
func (c Config) block() time.Duration  { return time.Duration(c.BlockSeconds) * time.Second }

// ttl is how long an entry can still influence a decision.
func (c Config) ttl() time.Duration {
	return max(c.window(), c.block()) + time.Minute
}

type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// Entry is the persisted state of one key.
type Entry struct {
	Count        int
	FirstSeen    time.Time
	LastSeen     time.Time
	BlockedUntil *time.Time
}

// Store persists entries. Get reports found=false for unknown keys.
//
// Hit is the one read-modify-write and must be atomic in the store: it
// counts an attempt at now, opening a fresh window when the old one has
// expired and the key is not blocked, and sets BlockedUntil to until once
// the count reaches cfg.MaxAttempts. Block only moves BlockedUntil of an
// existing key.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Hit(ctx context.Context, key string, now, until time.Time, cfg Config) (Entry, error)
	Block(ctx context.Context, key string, until time.Time, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Limiter struct {
	store Store
	clock clockwork.Clock
}

func New(store Store, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{store: store, clock: clock}
}

// Check decides whether key may proceed. It does not count the attempt, but
// it does start a block when the key is already at its limit.
func (l *Limiter) Check(ctx context.Context, key string, cfg Config) (Decision, error) {
	e, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Allowed: true}, nil
	}

	now := l.clock.Now()
	if e.BlockedUntil != nil && e.BlockedUntil.After(now) {
		return Decision{RetryAfterSeconds: retryAfter(*e.BlockedUntil, now)}, nil
	}
	if now.Sub(e.FirstSeen) > cfg.window() {
		return Decision{Allowed: true}, nil
	}
	if cfg.MaxAttempts > 0 && e.Count >= cfg.MaxAttempts {
		until := now.Add(cfg.block())
		if err := l.store.Block(ctx, key, until, cfg.ttl()); err != nil {
			return Decision{}, err
		}
		return Decision{RetryAfterSeconds: retryAfter(until, now)}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordHit counts one attempt against key. Concurrent hits on one key all
// count.
func (l *Limiter) RecordHit(ctx context.Context, key string, cfg Config) error {
	now := l.clock.Now()
	_, err := l.store.Hit(ctx, key, now, now.Add(cfg.block()), cfg)
	return err
}

// Clear forgets key, typically after a successful login.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

func retryAfter(until, now time.Time) int {
	return int(math.Ceil(until.Sub(now).Seconds()))
}
