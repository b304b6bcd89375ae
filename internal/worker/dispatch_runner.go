package worker

import (
	"context"
	"time"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/pkg/logger"
)

// Dispatcher is the dispatch service surface the runner drives.
type Dispatcher interface {
	DispatchPending(ctx context.Context, dryRun bool, limit int) (*model.DispatchResult, error)
}

type DispatchRunnerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DispatchRunner triggers a dispatch pass on a fixed interval. The service
// itself decides whether anything goes out; a disabled or preview-only
// configuration makes the pass a cheap no-op.
type DispatchRunner struct {
	dispatcher Dispatcher
	config     DispatchRunnerConfig
	logger     *logger.Logger
}

func NewDispatchRunner(dispatcher Dispatcher, config DispatchRunnerConfig, log *logger.Logger) *DispatchRunner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &DispatchRunner{
		dispatcher: dispatcher,
		config:     config,
		logger:     log.WithComponent("dispatch_runner"),
	}
}

func (r *DispatchRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("starting dispatch runner", "interval", r.config.Interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down dispatch runner")
			return
		case <-ticker.C:
			result, err := r.dispatcher.DispatchPending(ctx, false, r.config.BatchSize)
			if err != nil {
				r.logger.Error(err, "dispatch pass failed")
				continue
			}
			if result.Sent > 0 || result.Failed > 0 {
				r.logger.Info("dispatch pass",
					"sent", result.Sent,
					"skipped", result.Skipped,
					"failed", result.Failed)
			}
		}
	}
}
