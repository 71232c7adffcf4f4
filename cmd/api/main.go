package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshu-sajeev/catalogjobs/internal/app"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/logger"
	"github.com/joshu-sajeev/catalogjobs/internal/pool"
	"github.com/joshu-sajeev/catalogjobs/internal/router"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("reason", err.Error()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	a, err := app.Open(ctx, cfg, true, log)
	if err != nil {
		log.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	trigger := worker.NewAsyncTrigger(a.Runner, cfg.Worker.TriggerDelay, log)

	// The api process only sweeps; stale running jobs are handed back to the trigger.
	janitorCfg := cfg.Worker
	janitorCfg.Count = 0
	janitor := pool.NewWorkerPool(a.Jobs, a.Runner, janitorCfg, log, pool.WithOnStale(trigger.Fire))
	janitor.Start()

	service := job.NewJobService(a.Jobs, trigger, log)
	r := router.SetupRouter(router.Dependencies{
		Jobs:           job.NewJobHandler(service),
		Batches:        worker.NewBatchHandler(a.Runner, a.Jobs),
		Logger:         log,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: r,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", slog.Any("error", err))
	}
	if err := trigger.Close(shutdownCtx); err != nil {
		log.Warn("batch chains still running at shutdown", slog.Any("error", err))
	}
	janitor.Stop()

	log.Info("shutdown complete")
}
