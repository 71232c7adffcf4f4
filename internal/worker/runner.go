package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/gorm"
)

const (
	msgNotRunning = "job is not running"
	msgBusy       = "another batch is in progress for this job"
	msgNoItems    = "no items left to process"
	msgDiscarded  = "job changed during the batch, results discarded"
)

// Runner executes one batch of a running job at a time per job id.
type Runner struct {
	jobs       JobStore
	processors map[config.JobType]Processor
	logger     *slog.Logger
	now        func() time.Time
	newOwner   func() string

	batchSize     int
	parallelCount int
	maxBatchSize  int
	maxParallel   int
	chunkDelay    time.Duration
	itemTimeout   time.Duration
	leaseTTL      time.Duration
}

func NewRunner(jobs JobStore, processors []Processor, cfg config.WorkerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		jobs:          jobs,
		processors:    make(map[config.JobType]Processor, len(processors)),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		newOwner:      func() string { return uuid.NewString() },
		batchSize:     cfg.BatchSize,
		parallelCount: cfg.ParallelCount,
		maxBatchSize:  cfg.MaxBatchSize,
		maxParallel:   cfg.MaxParallel,
		chunkDelay:    cfg.ChunkDelay,
		itemTimeout:   cfg.ItemTimeout,
		leaseTTL:      cfg.LeaseTTL,
	}
	for _, p := range processors {
		r.processors[p.JobType()] = p
	}
	return r
}

var _ BatchRunner = (*Runner)(nil)

// limits resolves zero values to the defaults and clamps to the maximums.
func (r *Runner) limits(batchSize, parallelCount int) (int, int) {
	if batchSize <= 0 {
		batchSize = r.batchSize
	}
	if parallelCount <= 0 {
		parallelCount = r.parallelCount
	}
	if r.maxBatchSize > 0 {
		batchSize = min(batchSize, r.maxBatchSize)
	}
	if r.maxParallel > 0 {
		parallelCount = min(parallelCount, r.maxParallel)
	}
	return max(batchSize, 1), max(parallelCount, 1)
}

// RunBatch processes the next slice of a running job and records the outcome in
// a single write. Calls on a job that is not running return without changes.
func (r *Runner) RunBatch(ctx context.Context, jobID uint, batchSize, parallelCount int) (*dto.BatchResponseDTO, error) {
	batchSize, parallelCount = r.limits(batchSize, parallelCount)

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "failed to get job")
	}
	if job.Status != config.JobStatusRunning {
		return stopped(job, msgNotRunning), nil
	}

	owner := r.newOwner()
	logger := r.logger.With(slog.Uint64("job_id", uint64(jobID)), slog.String("batch_id", owner))

	acquired, err := r.jobs.AcquireLease(ctx, jobID, owner, r.now(), r.leaseTTL)
	if err != nil {
		return nil, storeError(err, "failed to acquire batch lease")
	}
	if !acquired {
		current, err := r.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, storeError(err, "failed to get job")
		}
		if current.Status != config.JobStatusRunning {
			return stopped(current, msgNotRunning), nil
		}
		logger.Debug("batch skipped, lease held elsewhere")
		resp := stopped(current, msgBusy)
		resp.Busy = true
		return resp, nil
	}

	leased := true
	defer func() {
		if !leased {
			return
		}
		if err := r.jobs.ReleaseLease(context.WithoutCancel(ctx), jobID, owner); err != nil {
			logger.Warn("failed to release batch lease", slog.Any("error", err))
		}
	}()

	// the offset is read under the lease
	job, err = r.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeError(err, "failed to get job")
	}

	proc, ok := r.processors[job.JobType]
	if !ok {
		return nil, common.Errf(http.StatusInternalServerError, "no processor for job type %s", job.JobType)
	}

	cfg, err := dto.DecodeJobConfig(job.JobType, job.Config)
	if err != nil {
		logger.Error("invalid job config", slog.Any("error", err))
		return nil, common.Errf(http.StatusInternalServerError, "invalid job config")
	}

	ids := cfg.ItemIDs()
	offset := min(job.ProcessedItems, len(ids))
	end := min(offset+batchSize, len(ids), job.TotalItems)

	if offset >= end {
		if job.ProcessedItems < job.TotalItems {
			// fewer ids than totalItems; nothing more can be done for this job
			logger.Warn("job has no items left before totalItems",
				slog.Int("processed_items", job.ProcessedItems),
				slog.Int("total_items", job.TotalItems),
			)
			return stopped(job, msgNoItems), nil
		}

		updated, err := r.jobs.ApplyBatch(context.WithoutCancel(ctx), jobID, owner, models.BatchDelta{At: r.now()})
		if err != nil {
			leased = !errors.Is(err, common.ErrLeaseLost)
			return r.persistFailure(ctx, logger, jobID, err, nil, dto.BatchResultDTO{})
		}
		leased = false
		resp := r.response(updated, dto.BatchResultDTO{}, nil)
		resp.Message = msgNoItems
		return resp, nil
	}

	items := ids[offset:end]
	started := time.Now()

	renew := func() (bool, error) {
		return r.jobs.ExtendLease(ctx, jobID, owner, r.now().Add(r.leaseTTL))
	}

	var results []dto.ItemResultDTO
	lost := false
	fn, err := proc.Begin(ctx, cfg)
	switch {
	case err == nil:
		results, lost = r.process(ctx, logger, proc.Paced(), fn, items, parallelCount, renew)
	case errors.Is(err, common.ErrUpstreamUnavailable):
		logger.Warn("batch short-circuited", slog.Any("error", err))
		results = failAll(items, err)
	default:
		logger.Error("failed to prepare batch", slog.Any("error", err))
		return nil, common.Errf(http.StatusInternalServerError, "failed to prepare batch")
	}

	delta, summary := summarize(results, r.now())

	if lost {
		leased = false
		return r.persistFailure(ctx, logger, jobID, common.ErrLeaseLost, results, summary)
	}

	updated, err := r.jobs.ApplyBatch(context.WithoutCancel(ctx), jobID, owner, delta)
	if err != nil {
		leased = !errors.Is(err, common.ErrLeaseLost)
		return r.persistFailure(ctx, logger, jobID, err, results, summary)
	}
	leased = false

	logger.Info("batch finished",
		slog.Int("offset", offset),
		slog.Int("attempted", delta.Attempted),
		slog.Int("succeeded", delta.Succeeded),
		slog.Int("failed", delta.Failed),
		slog.String("status", string(updated.Status)),
		slog.Duration("duration", time.Since(started)),
	)

	return r.response(updated, summary, results), nil
}

// process runs items in consecutive chunks of parallelCount. Items of a chunk
// run concurrently; a chunk starts only after the previous one is done. The
// lease is renewed before every chunk; lost reports that it was taken away and
// the results must not be written.
func (r *Runner) process(ctx context.Context, logger *slog.Logger, paced bool, fn ItemFunc, items []uint, parallelCount int, renew func() (bool, error)) (results []dto.ItemResultDTO, lost bool) {
	results = make([]dto.ItemResultDTO, 0, len(items))

	for start := 0; start < len(items); start += parallelCount {
		if start > 0 && paced && r.chunkDelay > 0 {
			select {
			case <-time.After(r.chunkDelay):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			logger.Warn("batch interrupted", slog.Int("done", len(results)), slog.Int("planned", len(items)))
			break
		}

		ok, err := renew()
		if err != nil {
			logger.Warn("failed to extend batch lease, stopping early", slog.Any("error", err))
			break
		}
		if !ok {
			logger.Warn("batch lease lost", slog.Int("done", len(results)), slog.Int("planned", len(items)))
			return results, true
		}

		chunk := items[start:min(start+parallelCount, len(items))]
		out := make([]dto.ItemResultDTO, len(chunk))

		var wg sync.WaitGroup
		for i, id := range chunk {
			wg.Go(func() {
				out[i] = r.runItem(ctx, fn, id)
			})
		}
		wg.Wait()

		results = append(results, out...)
	}

	return results, false
}

func (r *Runner) runItem(ctx context.Context, fn ItemFunc, id uint) (res dto.ItemResultDTO) {
	res.ProductID = id

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("item panicked", slog.Uint64("product_id", uint64(id)), slog.Any("panic", rec))
			res = dto.ItemResultDTO{
				ProductID: id,
				Error:     fmt.Sprintf("%v: panic: %v", common.ErrItemProcessing, rec),
			}
		}
	}()

	if r.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.itemTimeout)
		defer cancel()
	}

	out, err := fn(ctx, id)
	if err != nil {
		res.Error = fmt.Sprintf("%v: %v", common.ErrItemProcessing, err)
		return res
	}

	res.Success = true
	res.Skipped = out.Skipped
	res.Category = out.Category
	res.Title = out.Title
	res.Slug = out.Slug
	return res
}

func (r *Runner) persistFailure(ctx context.Context, logger *slog.Logger, jobID uint, err error, results []dto.ItemResultDTO, summary dto.BatchResultDTO) (*dto.BatchResponseDTO, error) {
	if !errors.Is(err, common.ErrLeaseLost) {
		logger.Error("failed to persist batch", slog.Any("error", err))
		return nil, common.Errf(http.StatusInternalServerError, "failed to persist batch")
	}

	logger.Warn("batch discarded, job left running state or lease expired")

	current, getErr := r.jobs.Get(context.WithoutCancel(ctx), jobID)
	if getErr != nil {
		return nil, storeError(getErr, "failed to get job")
	}
	resp := stopped(current, msgDiscarded)
	resp.Discarded = true
	resp.BatchResult = summary
	resp.Results = results
	return resp, nil
}

func (r *Runner) response(job *models.Job, summary dto.BatchResultDTO, results []dto.ItemResultDTO) *dto.BatchResponseDTO {
	if results == nil {
		results = []dto.ItemResultDTO{}
	}
	isCompleted := job.Status == config.JobStatusCompleted
	return &dto.BatchResponseDTO{
		Job:            dto.NewJobResponse(job),
		BatchResult:    summary,
		Results:        results,
		IsCompleted:    isCompleted,
		ShouldContinue: !isCompleted && job.Status == config.JobStatusRunning && job.ProcessedItems < job.TotalItems,
	}
}

func stopped(job *models.Job, msg string) *dto.BatchResponseDTO {
	return &dto.BatchResponseDTO{
		Job:         dto.NewJobResponse(job),
		Results:     []dto.ItemResultDTO{},
		IsCompleted: job.Status == config.JobStatusCompleted,
		Message:     msg,
	}
}

func failAll(items []uint, err error) []dto.ItemResultDTO {
	results := make([]dto.ItemResultDTO, len(items))
	for i, id := range items {
		results[i] = dto.ItemResultDTO{ProductID: id, Error: err.Error()}
	}
	return results
}

func summarize(results []dto.ItemResultDTO, at time.Time) (models.BatchDelta, dto.BatchResultDTO) {
	delta := models.BatchDelta{Attempted: len(results), At: at}
	for _, res := range results {
		if res.Success {
			delta.Succeeded++
			continue
		}
		delta.Failed++
		delta.LastError = res.Error
	}

	return delta, dto.BatchResultDTO{
		Total:     delta.Attempted,
		Processed: delta.Succeeded,
		Errors:    delta.Failed,
		LastError: delta.LastError,
	}
}

func storeError(err error, fallback string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return common.Kindf(http.StatusNotFound, common.ErrNotFound, "job not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", fallback)
	}
}
