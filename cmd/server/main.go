package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/playperu/livetrivia/internal/config"
	"github.com/playperu/livetrivia/internal/database"
	"github.com/playperu/livetrivia/internal/handler/health"
	"github.com/playperu/livetrivia/internal/livestate"
	"github.com/playperu/livetrivia/internal/metrics"
	"github.com/playperu/livetrivia/internal/migrations"
	"github.com/playperu/livetrivia/internal/ratelimit"
	"github.com/playperu/livetrivia/internal/readmodel"
	"github.com/playperu/livetrivia/internal/seed"
	"github.com/playperu/livetrivia/internal/server"
	"github.com/playperu/livetrivia/internal/store"
	"github.com/playperu/livetrivia/internal/stream"
	"github.com/playperu/livetrivia/internal/submission"
	"github.com/playperu/livetrivia/internal/teamsession"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	clock := clockwork.NewRealClock()

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{"sqlite": dbChecker{db}}

	// --- Rate limit store: Redis when configured, SQLite otherwise ---
	var limitStore ratelimit.Store
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb)
		checks["redis"] = redisChecker{rdb}
		logger.Info("connected to redis")
	} else {
		limitStore = ratelimit.NewSQLStore(db)
		checks["redis"] = nil
		logger.Info("redis not configured, rate limits stored in sqlite")
	}

	// --- Services ---
	prom := metrics.NewPrometheus()
	notifier := stream.NewNotifier()
	st := store.New(db, clock)
	sessions := teamsession.New(st)

	limiter := ratelimit.New(limitStore, clock)
	guard := func(action string, c ratelimit.Config) *ratelimit.Guard {
		return ratelimit.NewGuard(limiter, action, c, logger, prom)
	}

	submissions := submission.New(st, sessions,
		guard("answer", cfg.AnswerRate),
		guard("audio", cfg.AudioRate),
		submission.Config{
			Grace:    cfg.SubmissionGrace,
			Clock:    clock,
			Notifier: notifier,
			Metrics:  prom,
		},
	)

	if cfg.SeedDemo {
		demo, err := seed.Default()
		if err != nil {
			return fmt.Errorf("loading demo seed: %w", err)
		}
		if err := seed.Apply(ctx, logger, st, sessions, demo); err != nil {
			return fmt.Errorf("seeding demo event: %w", err)
		}
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, server.Deps{
		Logger:         logger,
		Clock:          clock,
		Store:          st,
		Sessions:       sessions,
		Live:           livestate.New(st, clock, notifier),
		Reads:          readmodel.New(st, clock, cfg.SubmissionGrace),
		Submissions:    submissions,
		Notifier:       notifier,
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
		HealthChecks:   checks,
		JoinGuard:      guard("join", cfg.JoinRate),
		RenameGuard:    guard("rename", cfg.RenameRate),
		LoginGuard:     guard("login", cfg.LoginRate),
		StreamOpens:    ratelimit.NewIPLimiter(rate.Limit(cfg.StreamOpenRPS), cfg.StreamOpenBurst, clock),
		StreamInterval: cfg.StreamInterval,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		StaticDir:      cfg.StaticDir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
