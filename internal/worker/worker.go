package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
)

// Worker polls for the running job and advances it one batch per tick. Idle
// ticks back off exponentially.
type Worker struct {
	ID            int
	jobs          ActiveJobFinder
	runner        BatchRunner
	batchSize     int
	parallelCount int
	minDelay      time.Duration
	maxDelay      time.Duration
	logger        *slog.Logger

	quit     chan struct{}
	stopOnce sync.Once
}

func NewWorker(id int, jobs ActiveJobFinder, runner BatchRunner, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID:            id,
		jobs:          jobs,
		runner:        runner,
		batchSize:     cfg.BatchSize,
		parallelCount: cfg.ParallelCount,
		minDelay:      cfg.PollInterval,
		maxDelay:      max(cfg.MaxPollInterval, cfg.PollInterval),
		logger:        logger.With(slog.Int("worker_id", id)),
		quit:          make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	currentDelay := w.minDelay

	for {
		if w.poll(ctx) {
			currentDelay = w.minDelay
		} else {
			currentDelay = min(currentDelay*2, w.maxDelay)
		}

		select {
		case <-time.After(currentDelay):
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) Start(ctx context.Context) {
	go w.Run(ctx)
}

// poll runs one batch of the running job and reports whether it made progress.
func (w *Worker) poll(ctx context.Context) bool {
	job, err := w.jobs.ActiveJob(ctx)
	if err != nil {
		w.logger.Warn("failed to find active job", slog.Any("error", err))
		return false
	}
	if job == nil || job.Status != config.JobStatusRunning {
		return false
	}

	resp, err := w.runner.RunBatch(ctx, job.ID, w.batchSize, w.parallelCount)
	if err != nil {
		w.logger.Warn("batch failed", slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", err))
		return false
	}

	return !resp.Busy && (resp.BatchResult.Total > 0 || resp.IsCompleted)
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
