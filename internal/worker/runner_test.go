package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/logger"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ worker.JobStore = (*postgres.JobRepository)(nil)
var _ worker.ProductStore = (*postgres.ProductRepository)(nil)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, postgres.MigrateModels(db, postgres.AllModels()...))
	return db
}

func seedJob(t *testing.T, db *gorm.DB, jobType config.JobType, status config.JobStatus, ids []uint, total int) *models.Job {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"urunIds": ids})
	require.NoError(t, err)

	job := &models.Job{
		JobType:    jobType,
		Status:     status,
		TotalItems: total,
		Config:     datatypes.JSON(raw),
		Version:    1,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func itemIDs(n int) []uint {
	ids := make([]uint, n)
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	return ids
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		BatchSize:     5,
		ParallelCount: 3,
		MaxBatchSize:  200,
		MaxParallel:   20,
		ItemTimeout:   time.Second,
		LeaseTTL:      time.Minute,
	}
}

// fakeProcessor records calls and the highest number of items in flight.
type fakeProcessor struct {
	jobType  config.JobType
	beginErr error
	item     worker.ItemFunc

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *fakeProcessor) JobType() config.JobType { return p.jobType }
func (p *fakeProcessor) Paced() bool             { return false }

func (p *fakeProcessor) Begin(context.Context, dto.JobConfig) (worker.ItemFunc, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return func(ctx context.Context, id uint) (worker.ItemOutcome, error) {
		p.calls.Add(1)
		n := p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		for {
			m := p.maxInFlight.Load()
			if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		if p.item != nil {
			return p.item(ctx, id)
		}
		return worker.ItemOutcome{Category: "ok"}, nil
	}, nil
}

func newRunner(db *gorm.DB, procs ...worker.Processor) (*worker.Runner, *postgres.JobRepository) {
	repo := postgres.NewJobRepository(db)
	return worker.NewRunner(repo, procs, testWorkerConfig(), logger.Discard()), repo
}

func reload(t *testing.T, db *gorm.DB, id uint) *models.Job {
	t.Helper()
	var job models.Job
	require.NoError(t, db.First(&job, id).Error)
	return &job
}

func assertCounters(t *testing.T, job *models.Job) {
	t.Helper()
	assert.Equal(t, job.ProcessedItems, job.SuccessCount+job.ErrorCount)
	assert.LessOrEqual(t, job.ProcessedItems, job.TotalItems)
	assert.Empty(t, job.LeaseOwner, "lease must be released")
}

func TestRunner_CompletesAfterTwoBatches(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeCategory}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(7), 7)

	first, err := runner.RunBatch(context.Background(), job.ID, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, first.BatchResult.Total)
	assert.Equal(t, 5, first.BatchResult.Processed)
	assert.False(t, first.IsCompleted)
	assert.True(t, first.ShouldContinue)
	assert.Equal(t, 5, first.Job.ProcessedItems)
	assertCounters(t, reload(t, db, job.ID))

	second, err := runner.RunBatch(context.Background(), job.ID, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, second.BatchResult.Total)
	assert.True(t, second.IsCompleted)
	assert.False(t, second.ShouldContinue)

	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 7, stored.ProcessedItems)
	assert.Equal(t, 2, stored.Version-job.Version)
	assertCounters(t, stored)

	// items were handed out in list order
	ids := make([]uint, 0, 7)
	for _, r := range append(first.Results, second.Results...) {
		ids = append(ids, r.ProductID)
	}
	assert.Equal(t, itemIDs(7), ids)
}

func TestRunner_NonRunningJobIsNoOp(t *testing.T) {
	for _, status := range []config.JobStatus{
		config.JobStatusPending,
		config.JobStatusPaused,
		config.JobStatusCompleted,
		config.JobStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			db := setupDB(t)
			proc := &fakeProcessor{jobType: config.JobTypeCategory}
			runner, _ := newRunner(db, proc)
			job := seedJob(t, db, config.JobTypeCategory, status, itemIDs(3), 3)

			resp, err := runner.RunBatch(context.Background(), job.ID, 0, 0)
			require.NoError(t, err)

			assert.Equal(t, "job is not running", resp.Message)
			assert.False(t, resp.ShouldContinue)
			assert.Empty(t, resp.Results)
			assert.Zero(t, proc.calls.Load())

			stored := reload(t, db, job.ID)
			assert.Equal(t, status, stored.Status)
			assert.Zero(t, stored.ProcessedItems)
			assert.Equal(t, job.Version, stored.Version)
		})
	}
}

func TestRunner_JobNotFound(t *testing.T) {
	db := setupDB(t)
	runner, _ := newRunner(db, &fakeProcessor{jobType: config.JobTypeCategory})

	resp, err := runner.RunBatch(context.Background(), 404, 0, 0)

	assert.Nil(t, resp)
	require.ErrorIs(t, err, common.ErrNotFound)
	var apiErr common.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			time.Sleep(20 * time.Millisecond)
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(10), 10)

	resp, err := runner.RunBatch(context.Background(), job.ID, 10, 3)
	require.NoError(t, err)

	assert.Equal(t, int32(10), proc.calls.Load())
	assert.LessOrEqual(t, proc.maxInFlight.Load(), int32(3))
	assert.Greater(t, proc.maxInFlight.Load(), int32(1))
	assert.True(t, resp.IsCompleted)
}

func TestRunner_ItemFailureIsolation(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(_ context.Context, id uint) (worker.ItemOutcome, error) {
			switch id {
			case 2:
				return worker.ItemOutcome{}, errors.New("product 2 not found")
			case 3:
				panic("classifier exploded")
			}
			return worker.ItemOutcome{Category: "Giyim"}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(5), 5)

	resp, err := runner.RunBatch(context.Background(), job.ID, 5, 3)
	require.NoError(t, err)

	require.Len(t, resp.Results, 5)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.Contains(t, resp.Results[1].Error, "product 2 not found")
	assert.False(t, resp.Results[2].Success)
	assert.Contains(t, resp.Results[2].Error, "classifier exploded")
	assert.True(t, resp.Results[3].Success)

	assert.Equal(t, 3, resp.BatchResult.Processed)
	assert.Equal(t, 2, resp.BatchResult.Errors)
	assert.Contains(t, resp.BatchResult.LastError, "classifier exploded")

	stored := reload(t, db, job.ID)
	assert.Equal(t, 2, stored.ErrorCount)
	assert.Equal(t, 3, stored.SuccessCount)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "classifier exploded")
	assertCounters(t, stored)
}

func TestRunner_UpstreamUnavailableFailsWholeBatch(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{
		jobType:  config.JobTypeSeo,
		beginErr: fmt.Errorf("%w: AI API key is not configured", common.ErrUpstreamUnavailable),
	}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeSeo, config.JobStatusRunning, itemIDs(4), 4)

	resp, err := runner.RunBatch(context.Background(), job.ID, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, resp.BatchResult.Processed)
	assert.Equal(t, 4, resp.BatchResult.Errors)
	assert.Contains(t, resp.BatchResult.LastError, "API key")
	assert.Zero(t, proc.calls.Load())

	stored := reload(t, db, job.ID)
	assert.Equal(t, 4, stored.ProcessedItems)
	assert.Equal(t, 4, stored.ErrorCount)
	assertCounters(t, stored)
}

func TestRunner_BeginFailureLeavesJobUntouched(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeSeo, beginErr: errors.New("settings table unreachable")}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeSeo, config.JobStatusRunning, itemIDs(2), 2)

	resp, err := runner.RunBatch(context.Background(), job.ID, 0, 0)

	assert.Nil(t, resp)
	var apiErr common.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.Status)

	stored := reload(t, db, job.ID)
	assert.Zero(t, stored.ProcessedItems)
	assert.Equal(t, job.Version, stored.Version)
	assert.Empty(t, stored.LeaseOwner)
}

func TestRunner_BusyWhileLeaseHeld(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeCategory}
	runner, repo := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(3), 3)

	ok, err := repo.AcquireLease(context.Background(), job.ID, "other-batch", time.Now().UTC(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := runner.RunBatch(context.Background(), job.ID, 0, 0)
	require.NoError(t, err)

	assert.True(t, resp.Busy)
	assert.False(t, resp.ShouldContinue)
	assert.Zero(t, proc.calls.Load())
	assert.Equal(t, "other-batch", reload(t, db, job.ID).LeaseOwner)
}

func TestRunner_ExpiredLeaseIsTakenOver(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeCategory}
	runner, repo := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(3), 3)

	past := time.Now().UTC().Add(-time.Hour)
	ok, err := repo.AcquireLease(context.Background(), job.ID, "crashed-batch", past, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	resp, err := runner.RunBatch(context.Background(), job.ID, 0, 0)
	require.NoError(t, err)
	assert.False(t, resp.Busy)
	assert.True(t, resp.IsCompleted)
}

func TestRunner_ConcurrentCallsNeverShareAnOffset(t *testing.T) {
	db := setupDB(t)
	var seen sync.Map
	var dup atomic.Bool
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(_ context.Context, id uint) (worker.ItemOutcome, error) {
			if _, loaded := seen.LoadOrStore(id, true); loaded {
				dup.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(20), 20)

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for {
				resp, err := runner.RunBatch(context.Background(), job.ID, 5, 2)
				if err != nil || (!resp.ShouldContinue && !resp.Busy) {
					return
				}
			}
		})
	}
	wg.Wait()

	assert.False(t, dup.Load(), "an item was processed twice")
	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusCompleted, stored.Status)
	assert.Equal(t, 20, stored.ProcessedItems)
	assertCounters(t, stored)
}

func TestRunner_LeaseRenewedAcrossSlowBatch(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			time.Sleep(60 * time.Millisecond)
			return worker.ItemOutcome{}, nil
		},
	}
	repo := postgres.NewJobRepository(db)
	cfg := testWorkerConfig()
	cfg.LeaseTTL = 100 * time.Millisecond
	cfg.ItemTimeout = 90 * time.Millisecond
	runner := worker.NewRunner(repo, []worker.Processor{proc}, cfg, logger.Discard())
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(5), 5)

	first := make(chan *dto.BatchResponseDTO, 1)
	go func() {
		resp, err := runner.RunBatch(context.Background(), job.ID, 5, 1)
		assert.NoError(t, err)
		first <- resp
	}()

	// past the initial lease expiry, while the first batch is still running
	time.Sleep(150 * time.Millisecond)
	second, err := runner.RunBatch(context.Background(), job.ID, 5, 1)
	require.NoError(t, err)
	assert.True(t, second.Busy)

	var resp *dto.BatchResponseDTO
	select {
	case resp = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch did not finish")
	}
	require.NotNil(t, resp)
	assert.False(t, resp.Discarded)
	assert.True(t, resp.IsCompleted)
	assert.Equal(t, int32(5), proc.calls.Load())

	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.ProcessedItems)
	assertCounters(t, stored)
}

func TestRunner_LostLeaseStopsWithoutWriting(t *testing.T) {
	db := setupDB(t)
	var job *models.Job
	var once sync.Once
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			once.Do(func() {
				assert.NoError(t, db.Model(&models.Job{}).Where("id = ?", job.ID).
					Update("lease_owner", "other-batch").Error)
			})
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job = seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(4), 4)

	resp, err := runner.RunBatch(context.Background(), job.ID, 4, 1)
	require.NoError(t, err)

	assert.True(t, resp.Discarded)
	assert.Equal(t, int32(1), proc.calls.Load())

	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusRunning, stored.Status)
	assert.Zero(t, stored.ProcessedItems)
	assert.Equal(t, "other-batch", stored.LeaseOwner)
}

func TestRunner_CancelledDuringBatchIsDiscarded(t *testing.T) {
	db := setupDB(t)
	var job *models.Job
	var once sync.Once
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			once.Do(func() {
				assert.NoError(t, db.Model(&models.Job{}).Where("id = ?", job.ID).
					Update("status", config.JobStatusCancelled).Error)
			})
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job = seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(4), 4)

	resp, err := runner.RunBatch(context.Background(), job.ID, 4, 1)
	require.NoError(t, err)

	assert.True(t, resp.Discarded)
	assert.False(t, resp.ShouldContinue)
	assert.Equal(t, 1, resp.BatchResult.Total, "processing stops at the next chunk")
	assert.Equal(t, int32(1), proc.calls.Load())

	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusCancelled, stored.Status)
	assert.Zero(t, stored.ProcessedItems)
	assert.Nil(t, stored.CompletedAt)
}

func TestRunner_PausedDuringBatchKeepsCounters(t *testing.T) {
	db := setupDB(t)
	var job *models.Job
	var once sync.Once
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			once.Do(func() {
				assert.NoError(t, db.Model(&models.Job{}).Where("id = ?", job.ID).
					Update("status", config.JobStatusPaused).Error)
			})
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job = seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(3), 3)

	resp, err := runner.RunBatch(context.Background(), job.ID, 3, 1)
	require.NoError(t, err)

	assert.False(t, resp.IsCompleted)
	assert.False(t, resp.ShouldContinue)

	stored := reload(t, db, job.ID)
	assert.Equal(t, config.JobStatusPaused, stored.Status)
	assert.Equal(t, 3, stored.ProcessedItems)
	assert.Nil(t, stored.CompletedAt)
	assertCounters(t, stored)
}

func TestRunner_CompletesExhaustedRunningJob(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeCategory}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(2), 2)
	require.NoError(t, db.Model(job).Updates(map[string]any{"processed_items": 2, "success_count": 2}).Error)

	resp, err := runner.RunBatch(context.Background(), job.ID, 0, 0)
	require.NoError(t, err)

	assert.True(t, resp.IsCompleted)
	assert.Zero(t, resp.BatchResult.Total)
	assert.Zero(t, proc.calls.Load())
	assert.Equal(t, config.JobStatusCompleted, reload(t, db, job.ID).Status)
}

func TestRunner_StopsBetweenChunksOnCancel(t *testing.T) {
	db := setupDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcessor{
		jobType: config.JobTypeCategory,
		item: func(context.Context, uint) (worker.ItemOutcome, error) {
			cancel()
			return worker.ItemOutcome{}, nil
		},
	}
	runner, _ := newRunner(db, proc)
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(6), 6)

	resp, err := runner.RunBatch(ctx, job.ID, 6, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.BatchResult.Total)
	assert.True(t, resp.ShouldContinue)

	stored := reload(t, db, job.ID)
	assert.Equal(t, 2, stored.ProcessedItems)
	assertCounters(t, stored)
}

func TestRunner_ClampsSizes(t *testing.T) {
	db := setupDB(t)
	proc := &fakeProcessor{jobType: config.JobTypeCategory}
	repo := postgres.NewJobRepository(db)
	cfg := testWorkerConfig()
	cfg.MaxBatchSize = 4
	runner := worker.NewRunner(repo, []worker.Processor{proc}, cfg, logger.Discard())
	job := seedJob(t, db, config.JobTypeCategory, config.JobStatusRunning, itemIDs(10), 10)

	resp, err := runner.RunBatch(context.Background(), job.ID, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.BatchResult.Total)
}
