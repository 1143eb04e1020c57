package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/service"
)

// OutboxRelayWorker periodically sweeps the outbox for rows that committed
// but were never confirmed published, and republishes them. The grace period
// keeps the sweep from racing the publish that normally follows a commit.
type OutboxRelayWorker struct {
	svc      *service.OutboxService
	interval time.Duration
	grace    time.Duration
	limit    int32
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewOutboxRelayWorker(svc *service.OutboxService) *OutboxRelayWorker {
	return &OutboxRelayWorker{
		svc:      svc,
		interval: 30 * time.Second,
		grace:    time.Minute,
		limit:    200,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *OutboxRelayWorker) WithInterval(interval time.Duration) *OutboxRelayWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithGrace updates the minimum age of rows the sweep picks up.
func (w *OutboxRelayWorker) WithGrace(grace time.Duration) *OutboxRelayWorker {
	if grace > 0 {
		w.grace = grace
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *OutboxRelayWorker) Start(ctx context.Context) {
	zap.L().Info("outbox relay worker starting",
		zap.Duration("interval", w.interval),
		zap.Duration("grace", w.grace))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("outbox relay worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("outbox relay worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *OutboxRelayWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *OutboxRelayWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *OutboxRelayWorker) runOnce(ctx context.Context) {
	republished, err := w.svc.Sweep(ctx, w.grace, w.limit)
	if err != nil {
		observability.IncrementWorkerRun("outbox_relay", "failed")
		zap.L().Error("outbox sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("outbox_relay", "success")
	if republished > 0 {
		zap.L().Info("outbox sweep republished events", zap.Int("count", republished))
	}
}
