package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vasp-link.backend/internal/usecases"
	"vasp-link.backend/pkg/logger"
)

// BackgroundWorker drains the engine's follow-up task queue: KYC
// evaluations, soft match clearing, travel rule settlement, and send
// retries.
type BackgroundWorker struct {
	engine   *usecases.OffchainEngine
	interval time.Duration
	stop     chan struct{}
}

func NewBackgroundWorker(engine *usecases.OffchainEngine, interval time.Duration) *BackgroundWorker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &BackgroundWorker{
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the worker loop until Stop is called or the context is
// cancelled.
func (w *BackgroundWorker) Start(ctx context.Context) {
	logger.Info(ctx, "starting offchain background worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "offchain background worker stopped (context cancelled)")
			return
		case <-w.stop:
			logger.Info(ctx, "offchain background worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *BackgroundWorker) Stop() {
	close(w.stop)
}

// drain runs queued tasks until the queue is empty.
func (w *BackgroundWorker) drain(ctx context.Context) {
	for {
		result, ran, err := w.engine.RunOnceBackground(ctx)
		if err != nil {
			logger.Error(ctx, "background task failed", zap.Error(err))
			continue
		}
		if !ran {
			return
		}
		if result != nil && result.Action != "" {
			logger.Debug(ctx, "background task done",
				zap.String("action", string(result.Action)),
				zap.String("result", string(result.Result)))
		}
	}
}
