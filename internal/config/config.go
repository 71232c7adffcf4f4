package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// AppConfig is the process configuration shared by the api, worker and jobctl binaries.
// Database settings live in postgres.Config.
type AppConfig struct {
	HTTP   HTTPConfig   `env:",prefix=HTTP_"`
	Log    LogConfig    `env:",prefix=LOG_"`
	Worker WorkerConfig `env:",prefix=WORKER_"`
	AI     AIConfig     `env:",prefix=AI_"`

	// KeywordsFile overrides the built-in category keyword table.
	KeywordsFile string `env:"CATEGORY_KEYWORDS_FILE"`
}

type HTTPConfig struct {
	Port            string        `env:"PORT,default=8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL,default=info"`
	Format string `env:"FORMAT,default=console"`
}

type WorkerConfig struct {
	BatchSize       int           `env:"BATCH_SIZE,default=10"`
	ParallelCount   int           `env:"PARALLEL_COUNT,default=3"`
	MaxBatchSize    int           `env:"MAX_BATCH_SIZE,default=200"`
	MaxParallel     int           `env:"MAX_PARALLEL,default=20"`
	ChunkDelay      time.Duration `env:"CHUNK_DELAY,default=250ms"`
	ItemTimeout     time.Duration `env:"ITEM_TIMEOUT,default=60s"`
	LeaseTTL        time.Duration `env:"LEASE_TTL,default=5m"`
	TriggerDelay    time.Duration `env:"TRIGGER_DELAY,default=500ms"`
	Count           int           `env:"COUNT,default=1"`
	PollInterval    time.Duration `env:"POLL_INTERVAL,default=1s"`
	MaxPollInterval time.Duration `env:"MAX_POLL_INTERVAL,default=60s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL,default=30s"`
	StaleAfter      time.Duration `env:"STALE_AFTER,default=2m"`
}

type AIConfig struct {
	Provider  string        `env:"PROVIDER,default=openai"`
	APIKey    string        `env:"API_KEY"`
	Model     string        `env:"MODEL"`
	BaseURL   string        `env:"BASE_URL"`
	RateLimit float64       `env:"RATE_LIMIT,default=3"`
	Timeout   time.Duration `env:"TIMEOUT,default=30s"`
}

// to help with testing
var envProcess = envconfig.Process

func Load(ctx context.Context) (*AppConfig, error) {
	var cfg AppConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	var errs []string

	if strings.TrimSpace(c.HTTP.Port) == "" {
		errs = append(errs, "HTTP_PORT is required")
	}

	w := c.Worker
	if w.BatchSize < 1 {
		errs = append(errs, "WORKER_BATCH_SIZE must be positive")
	}
	if w.ParallelCount < 1 {
		errs = append(errs, "WORKER_PARALLEL_COUNT must be positive")
	}
	if w.MaxBatchSize < w.BatchSize {
		errs = append(errs, "WORKER_MAX_BATCH_SIZE must not be below WORKER_BATCH_SIZE")
	}
	if w.MaxParallel < w.ParallelCount {
		errs = append(errs, "WORKER_MAX_PARALLEL must not be below WORKER_PARALLEL_COUNT")
	}
	if w.ChunkDelay < 0 {
		errs = append(errs, "WORKER_CHUNK_DELAY must not be negative")
	}
	if w.ItemTimeout <= 0 {
		errs = append(errs, "WORKER_ITEM_TIMEOUT must be positive")
	}
	if w.LeaseTTL <= 0 {
		errs = append(errs, "WORKER_LEASE_TTL must be positive")
	} else if w.ItemTimeout > 0 && w.LeaseTTL <= w.ItemTimeout+max(w.ChunkDelay, 0) {
		// the lease is renewed once per chunk
		errs = append(errs, "WORKER_LEASE_TTL must exceed WORKER_ITEM_TIMEOUT plus WORKER_CHUNK_DELAY")
	}
	if w.Count < 0 {
		errs = append(errs, "WORKER_COUNT must be non-negative")
	}
	if w.PollInterval <= 0 || w.MaxPollInterval < w.PollInterval {
		errs = append(errs, "WORKER_POLL_INTERVAL must be positive and not above WORKER_MAX_POLL_INTERVAL")
	}
	if w.JanitorInterval <= 0 {
		errs = append(errs, "WORKER_JANITOR_INTERVAL must be positive")
	}

	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, "AI_PROVIDER must be openai or anthropic")
	}
	if c.AI.RateLimit <= 0 {
		errs = append(errs, "AI_RATE_LIMIT must be positive")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, "LOG_FORMAT must be console or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
