package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncTrigger runs batches for a job in the background after a short delay
// and keeps going while the runner reports more work. Fire never blocks.
type AsyncTrigger struct {
	runner BatchRunner
	delay  time.Duration
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// job id -> refire requested while a chain is in flight
	chains map[uint]bool
}

func NewAsyncTrigger(runner BatchRunner, delay time.Duration, logger *slog.Logger) *AsyncTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncTrigger{
		runner: runner,
		delay:  delay,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		chains: make(map[uint]bool),
	}
}

// Fire schedules batches for jobID. A job with a chain in flight gets one more
// pass once that chain ends.
func (t *AsyncTrigger) Fire(jobID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if _, running := t.chains[jobID]; running {
		t.chains[jobID] = true
		return
	}

	t.chains[jobID] = false
	t.wg.Go(func() { t.run(jobID) })
}

func (t *AsyncTrigger) run(jobID uint) {
	for {
		t.chain(jobID)

		t.mu.Lock()
		if t.chains[jobID] && !t.closed {
			t.chains[jobID] = false
			t.mu.Unlock()
			continue
		}
		delete(t.chains, jobID)
		t.mu.Unlock()
		return
	}
}

func (t *AsyncTrigger) chain(jobID uint) {
	logger := t.logger.With(slog.Uint64("job_id", uint64(jobID)))

	select {
	case <-time.After(t.delay):
	case <-t.ctx.Done():
		return
	}

	for t.ctx.Err() == nil {
		resp, err := t.runner.RunBatch(t.ctx, jobID, 0, 0)
		if err != nil {
			logger.Warn("triggered batch failed", slog.Any("error", err))
			return
		}
		if resp.Busy || !resp.ShouldContinue {
			logger.Debug("trigger chain finished",
				slog.Bool("busy", resp.Busy),
				slog.Bool("completed", resp.IsCompleted),
			)
			return
		}
	}
}

// Close stops scheduling, cancels running chains and waits for them until ctx ends.
func (t *AsyncTrigger) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
