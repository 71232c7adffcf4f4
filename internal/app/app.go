// Package app wires the storage, collaborators and batch runner shared by the
// api, worker and jobctl binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joshu-sajeev/catalogjobs/internal/classifier"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/rewriter"
	"github.com/joshu-sajeev/catalogjobs/internal/settings"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"gorm.io/gorm"
)

type App struct {
	DB       *gorm.DB
	Jobs     *postgres.JobRepository
	Products *postgres.ProductRepository
	Settings *postgres.SettingsRepository
	Resolver *settings.Resolver
	Runner   *worker.Runner
}

// Open connects to the database and builds the batch runner. migrate applies
// the embedded migrations first.
func Open(ctx context.Context, cfg *config.AppConfig, migrate bool, logger *slog.Logger) (*App, error) {
	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	return New(db, cfg, logger)
}

// New builds the application on an open database.
func New(db *gorm.DB, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	cls, err := classifier.Load(cfg.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("load category keywords: %w", err)
	}

	a := &App{
		DB:       db,
		Jobs:     postgres.NewJobRepository(db),
		Products: postgres.NewProductRepository(db),
		Settings: postgres.NewSettingsRepository(db),
	}
	a.Resolver = settings.NewResolver(a.Settings, cfg.AI)

	rw := NewRewriter(cfg.AI, logger)
	processors := []worker.Processor{
		worker.NewCategoryProcessor(a.Products, cls),
		worker.NewSeoProcessor(a.Products, cls, rw, a.Resolver),
	}
	a.Runner = worker.NewRunner(a.Jobs, processors, cfg.Worker, logger)

	return a, nil
}

// NewRewriter builds the AI client. AI_BASE_URL applies to the configured provider.
func NewRewriter(cfg config.AIConfig, logger *slog.Logger) *rewriter.Client {
	opts := []rewriter.Option{
		rewriter.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		rewriter.WithRateLimit(cfg.RateLimit),
		rewriter.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		switch cfg.Provider {
		case rewriter.ProviderAnthropic:
			opts = append(opts, rewriter.WithAnthropicBaseURL(cfg.BaseURL))
		default:
			opts = append(opts, rewriter.WithOpenAIBaseURL(cfg.BaseURL))
		}
	}
	return rewriter.New(opts...)
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
