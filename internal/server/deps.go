package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/livetrivia/internal/handler/health"
	"github.com/playperu/livetrivia/internal/livestate"
	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/stream"
	"github.com/playperu/livetrivia/internal/submission"
	"github.com/playperu/livetrivia/internal/teamsession"
)

// Deps is everything the HTTP layer needs. Services are built by the caller
// so tests and main share one wiring path.
type Deps struct {
	Logger      *slog.Logger
	Clock       clockwork.Clock
	Store       *store.Store
	Sessions    *teamsession.Manager
	Live        *livestate.Service
	Reads       *readmodel.Builder
	Submissions *submission.Service
	Notifier    *stream.Notifier
	Metrics     metrics.Recorder

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	HealthChecks   map[string]health.Checker

	JoinGuard   *ratelimit.Guard
	RenameGuard *ratelimit.Guard
	LoginGuard  *ratelimit.Guard
	StreamOpens *ratelimit.IPLimiter

	StreamInterval time.Duration
	AllowedOrigins []string
	CookieSecure   bool

	// StaticDir, when set, holds the built frontend served for non-API paths.
	StaticDir string
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Notifier == nil {
		d.Notifier = stream.NewNotifier()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.StreamInterval <= 0 {
		d.StreamInterval = stream.DefaultInterval
	}
}
