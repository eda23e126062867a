package service

import (
	"context"
	"errors"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/config"
	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/resilience"
)

// PoolDispatcher runs stage jobs on a shared worker pool with bounded
// retries. Business failures and lost compare-and-swaps are never retried;
// everything else gets the configured attempt budget with backoff.
type PoolDispatcher struct {
	pool  *resilience.WorkerPool
	retry resilience.RetryConfig

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewPoolDispatcher builds the production dispatcher from upload config.
func NewPoolDispatcher(cfg config.UploadConfig) *PoolDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &PoolDispatcher{
		pool: resilience.NewWorkerPool(cfg.StageWorkers, cfg.StageQueueSize),
		retry: resilience.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Dispatch enqueues a stage job. Jobs detach from the caller's request
// context; shutdown cancels them through the dispatcher's own context.
func (d *PoolDispatcher) Dispatch(stage, sessionID string, job func(ctx context.Context) error) {
	err := d.pool.Submit(d.baseCtx, func() {
		runErr := resilience.Retry(d.baseCtx, d.retry, stagePermanent, job)
		if runErr == nil {
			return
		}
		if stagePermanent(runErr) {
			// The stage already recorded its own verdict on the session.
			logger.Infow("Stage job ended with a final verdict", "stage", stage, "session_id", sessionID, "error", runErr.Error())
			return
		}
		logger.Errorw("Stage job exhausted retries", "stage", stage, "session_id", sessionID, "error", runErr.Error())
	})
	if err != nil {
		logger.Warnw("Stage job rejected", "stage", stage, "session_id", sessionID, "error", err.Error())
	}
}

// Shutdown stops intake and drains queued jobs.
func (d *PoolDispatcher) Shutdown() {
	d.pool.Close()
	d.pool.Wait()
	d.cancel()
}

// stagePermanent classifies errors whose outcome retrying cannot change.
func stagePermanent(err error) bool {
	return domain.IsTerminal(err) || errors.Is(err, port.ErrStatusConflict)
}
