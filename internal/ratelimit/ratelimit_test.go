package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/store/storetest"
)

func newLimiter(t *testing.T) (*ratelimit.Limiter, *clockwork.FakeClock) {
	t.Helper()
	s, clock := storetest.Open(t)
	return ratelimit.New(ratelimit.NewSQLStore(s.DB()), clock), clock
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 5, WindowSeconds: 900, BlockSeconds: 1800}
	key := "public-join:203.0.113.9:4821"

	for i := range 5 {
		d, err := l.Check(ctx, key, cfg)
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d should be allowed", i+1)
		require.NoError(t, l.RecordHit(ctx, key, cfg))
		clock.Advance(10 * time.Second)
	}

	d, err := l.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "sixth attempt must be rejected")
	assert.InDelta(t, 1800, d.RetryAfterSeconds, 15)

	clock.Advance(30 * time.Minute)
	d, err = l.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "attempt after the block elapsed should be allowed")
}

func TestWindowResets(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 5, WindowSeconds: 900, BlockSeconds: 1800}
	key := "k"

	for range 4 {
		require.NoError(t, l.RecordHit(ctx, key, cfg))
	}
	clock.Advance(901 * time.Second)

	d, err := l.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The next hit opens a fresh window, so four more are still fine.
	for range 4 {
		require.NoError(t, l.RecordHit(ctx, key, cfg))
	}
	d, err = l.Check(ctx, key, cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheckBlocksWhenAtLimitInsideWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 2, WindowSeconds: 600, BlockSeconds: 60}

	require.NoError(t, l.RecordHit(ctx, "k", cfg))
	require.NoError(t, l.RecordHit(ctx, "k", cfg))
	d, err := l.Check(ctx, "k", cfg)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// The block lapses but the window has not, so the count still applies.
	clock.Advance(61 * time.Second)
	d, err = l.Check(ctx, "k", cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60, d.RetryAfterSeconds)
}

func TestCheckDoesNotCount(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 1, WindowSeconds: 60, BlockSeconds: 60}

	for range 10 {
		d, err := l.Check(ctx, "k", cfg)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 1, WindowSeconds: 60, BlockSeconds: 60}

	require.NoError(t, l.RecordHit(ctx, "k", cfg))
	d, err := l.Check(ctx, "k", cfg)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, l.Clear(ctx, "k"))
	d, err = l.Check(ctx, "k", cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConcurrentHitsAllCount(t *testing.T) {
	ctx := context.Background()
	s, clock := storetest.Open(t)
	st := ratelimit.NewSQLStore(s.DB())
	l := ratelimit.New(st, clock)
	const n = 50
	cfg := ratelimit.Config{MaxAttempts: n, WindowSeconds: 60, BlockSeconds: 120}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.RecordHit(ctx, "answer:4821:203.0.113.7", cfg)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	e, ok, err := st.Get(ctx, "answer:4821:203.0.113.7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, n, e.Count)
	require.NotNil(t, e.BlockedUntil, "the last hit reaches the limit")

	d, err := l.Check(ctx, "answer:4821:203.0.113.7", cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 120, d.RetryAfterSeconds)
}

func TestSQLStoreHitWindowAndBlock(t *testing.T) {
	ctx := context.Background()
	s, clock := storetest.Open(t)
	st := ratelimit.NewSQLStore(s.DB())
	cfg := ratelimit.Config{MaxAttempts: 3, WindowSeconds: 60, BlockSeconds: 300}
	hit := func() ratelimit.Entry {
		t.Helper()
		now := clock.Now()
		e, err := st.Hit(ctx, "k", now, now.Add(300*time.Second), cfg)
		require.NoError(t, err)
		return e
	}

	start := clock.Now().UTC()
	assert.Equal(t, 1, hit().Count)
	clock.Advance(61 * time.Second)
	e := hit()
	assert.Equal(t, 1, e.Count, "expired window starts over")
	assert.True(t, e.FirstSeen.Equal(start.Add(61*time.Second)))

	hit()
	e = hit()
	assert.Equal(t, 3, e.Count)
	require.NotNil(t, e.BlockedUntil)
	until := *e.BlockedUntil

	// Hits while blocked keep counting and never extend the block, even
	// after the window has gone by.
	clock.Advance(90 * time.Second)
	e = hit()
	assert.Equal(t, 4, e.Count)
	assert.True(t, e.BlockedUntil.Equal(until))

	// Once the block lapses an expired window resets everything.
	clock.Advance(300 * time.Second)
	e = hit()
	assert.Equal(t, 1, e.Count)
	assert.Nil(t, e.BlockedUntil)
}

func TestSingleAttemptLimitBlocksOnFirstHit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t)
	cfg := ratelimit.Config{MaxAttempts: 1, WindowSeconds: 60, BlockSeconds: 30}

	require.NoError(t, l.RecordHit(ctx, "k", cfg))
	d, err := l.Check(ctx, "k", cfg)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30, d.RetryAfterSeconds)
}

type recorder struct {
	metrics.Nop
	mu          sync.Mutex
	storeErrors []string
	denied      []string
}

func (r *recorder) RateLimitStoreError(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrors = append(r.storeErrors, op)
}

func (r *recorder) RateLimitDenied(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denied = append(r.denied, action)
}

func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "localhost:1",
		DialTimeout:  10 * time.Millisecond,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 10 * time.Millisecond,
		MaxRetries:   -1,
	})
}

func TestGuardFailsOpen(t *testing.T) {
	ctx := context.Background()
	rdb := deadRedis()
	defer rdb.Close()

	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ratelimit.New(ratelimit.NewRedisStore(rdb), clockwork.NewFakeClock())
	g := ratelimit.NewGuard(l, "login", ratelimit.Config{MaxAttempts: 1, WindowSeconds: 60, BlockSeconds: 60}, logger, rec)

	d := g.Allow(ctx, g.Key("198.51.100.4"))
	assert.True(t, d.Allowed, "store outage must not lock callers out")
	g.Hit(ctx, g.Key("198.51.100.4"))

	assert.Equal(t, []string{"check", "hit"}, rec.storeErrors)
	assert.Empty(t, rec.denied)
}

func TestGuardCountsDenials(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t)
	rec := &recorder{}
	g := ratelimit.NewGuard(l, "join", ratelimit.Config{MaxAttempts: 1, WindowSeconds: 60, BlockSeconds: 60}, nil, rec)

	key := g.Key("192.0.2.1", "4821")
	assert.Equal(t, "join:192.0.2.1:4821", key)
	g.Hit(ctx, key)
	assert.False(t, g.Allow(ctx, key).Allowed)
	assert.Equal(t, []string{"join"}, rec.denied)

	g.Reset(ctx, key)
	assert.True(t, g.Allow(ctx, key).Allowed)
}

func TestIPLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := ratelimit.NewIPLimiter(rate.Limit(1), 2, clock)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "other IPs have their own bucket")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("a"))
}
