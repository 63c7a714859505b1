package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/playperu/livetrivia/internal/ratelimit"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/livetrivia.db"`
	RedisURL string     `env:"REDIS_URL"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SeedDemo bool       `env:"SEED_DEMO" envDefault:"false"`

	// StaticDir serves a built frontend when set.
	StaticDir string `env:"STATIC_DIR"`

	StreamInterval  time.Duration `env:"STREAM_INTERVAL" envDefault:"2s"`
	SubmissionGrace time.Duration `env:"SUBMISSION_GRACE" envDefault:"10s"`
	StreamOpenRPS   float64       `env:"STREAM_OPEN_RPS" envDefault:"1"`
	StreamOpenBurst int           `env:"STREAM_OPEN_BURST" envDefault:"10"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CookieSecure       bool     `env:"COOKIE_SECURE" envDefault:"false"`

	JoinRate   ratelimit.Config `envPrefix:"JOIN_RATE_"`
	RenameRate ratelimit.Config `envPrefix:"RENAME_RATE_"`
	AnswerRate ratelimit.Config `envPrefix:"ANSWER_RATE_"`
	AudioRate  ratelimit.Config `envPrefix:"AUDIO_RATE_"`
	LoginRate  ratelimit.Config `envPrefix:"LOGIN_RATE_"`
}

// Default thresholds per action, used for any value left unset.
var (
	DefaultJoinRate   = ratelimit.Config{MaxAttempts: 5, WindowSeconds: 900, BlockSeconds: 1800}
	DefaultRenameRate = ratelimit.Config{MaxAttempts: 10, WindowSeconds: 600, BlockSeconds: 600}
	DefaultAnswerRate = ratelimit.Config{MaxAttempts: 60, WindowSeconds: 60, BlockSeconds: 120}
	DefaultAudioRate  = ratelimit.Config{MaxAttempts: 30, WindowSeconds: 60, BlockSeconds: 120}
	DefaultLoginRate  = ratelimit.Config{MaxAttempts: 5, WindowSeconds: 900, BlockSeconds: 1800}
)

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	fill(&cfg.JoinRate, DefaultJoinRate)
	fill(&cfg.RenameRate, DefaultRenameRate)
	fill(&cfg.AnswerRate, DefaultAnswerRate)
	fill(&cfg.AudioRate, DefaultAudioRate)
	fill(&cfg.LoginRate, DefaultLoginRate)

	if cfg.StreamInterval <= 0 {
		return nil, errors.New("STREAM_INTERVAL must be positive")
	}
	if cfg.SubmissionGrace < 0 {
		return nil, errors.New("SUBMISSION_GRACE must not be negative")
	}
	return &cfg, nil
}

func fill(c *ratelimit.Config, def ratelimit.Config) {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = def.WindowSeconds
	}
	if c.BlockSeconds <= 0 {
		c.BlockSeconds = def.BlockSeconds
	}
}
