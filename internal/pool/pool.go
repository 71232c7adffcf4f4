package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"github.com/robfig/cron/v3"
)

// Store is what the pool needs from the job repository.
type Store interface {
	worker.ActiveJobFinder
	ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	ListStale(ctx context.Context, now, idleSince time.Time) ([]models.Job, error)
}

// WorkerPool runs polling workers and a janitor that recovers abandoned batches.
type WorkerPool struct {
	workers    []*worker.Worker
	store      Store
	cron       *cron.Cron
	interval   time.Duration
	staleAfter time.Duration
	onStale    func(jobID uint)
	logger     *slog.Logger
	now        func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*WorkerPool)

// WithOnStale re-drives running jobs that saw no batch for the stale period.
func WithOnStale(fn func(jobID uint)) Option {
	return func(p *WorkerPool) { p.onStale = fn }
}

func NewWorkerPool(store Store, runner worker.BatchRunner, cfg config.WorkerConfig, logger *slog.Logger, opts ...Option) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		store:      store,
		cron:       cron.New(),
		interval:   cfg.JanitorInterval,
		staleAfter: cfg.StaleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 1; i <= cfg.Count; i++ {
		p.workers = append(p.workers, worker.NewWorker(i, store, runner, cfg, logger))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		p.wg.Go(func() { w.Run(p.ctx) })
	}

	if p.interval > 0 {
		p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
			if _, err := p.Sweep(p.ctx); err != nil {
				p.logger.Warn("janitor sweep failed", slog.Any("error", err))
			}
		}))
		p.cron.Start()
	}

	p.logger.Info("worker pool started",
		slog.Int("workers", len(p.workers)),
		slog.Duration("janitor_interval", p.interval),
	)
}

// SweepResult reports one janitor pass.
type SweepResult struct {
	ReleasedLeases int64
	StaleJobs      []uint
}

// Sweep clears expired leases and hands stale running jobs to the OnStale hook.
func (p *WorkerPool) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := p.now()

	released, err := p.store.ReleaseExpiredLeases(ctx, now)
	if err != nil {
		return res, err
	}
	res.ReleasedLeases = released
	if released > 0 {
		p.logger.Info("recovered expired batch leases", slog.Int64("count", released))
	}

	if p.onStale == nil || p.staleAfter <= 0 {
		return res, nil
	}

	stale, err := p.store.ListStale(ctx, now, now.Add(-p.staleAfter))
	if err != nil {
		return res, err
	}
	for _, j := range stale {
		p.logger.Info("re-triggering stale job", slog.Uint64("job_id", uint64(j.ID)))
		p.onStale(j.ID)
		res.StaleJobs = append(res.StaleJobs, j.ID)
	}
	return res, nil
}

func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	<-p.cron.Stop().Done()
	p.wg.Wait()
}
