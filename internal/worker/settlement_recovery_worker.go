package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/service"
)

// SettlementRecoveryWorker re-queues FAILED settlements on a slower schedule
// than the primary settlement worker.
type SettlementRecoveryWorker struct {
	svc      *service.SettlementService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSettlementRecoveryWorker(svc *service.SettlementService) *SettlementRecoveryWorker {
	return &SettlementRecoveryWorker{
		svc:      svc,
		interval: 10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *SettlementRecoveryWorker) WithInterval(interval time.Duration) *SettlementRecoveryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs recovery at the configured interval.
func (w *SettlementRecoveryWorker) Start(ctx context.Context) {
	zap.L().Info("settlement recovery worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("settlement recovery worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("settlement recovery worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *SettlementRecoveryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SettlementRecoveryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *SettlementRecoveryWorker) runOnce(ctx context.Context) {
	result, err := w.svc.RecoverFailed(ctx)
	if err != nil {
		observability.IncrementWorkerRun("settlement_recovery", "failed")
		zap.L().Error("settlement recovery run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("settlement_recovery", "success")
	if result.Processed > 0 {
		zap.L().Info("settlement recovery run done",
			zap.Int("processed", result.Processed),
			zap.Int("promoted", result.Promoted),
			zap.Int("failed", result.Failed))
	}
}
