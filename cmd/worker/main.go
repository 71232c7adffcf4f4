package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshu-sajeev/catalogjobs/internal/app"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/logger"
	"github.com/joshu-sajeev/catalogjobs/internal/pool"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	a, err := app.Open(ctx, cfg, false, log)
	if err != nil {
		log.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	workerPool := pool.NewWorkerPool(a.Jobs, a.Runner, cfg.Worker, log)
	workerPool.Start()
	log.Info("worker pool active, press Ctrl+C to stop", slog.Int("workers", cfg.Worker.Count))

	<-ctx.Done()

	workerPool.Stop()
	log.Info("shutdown complete")
}
