package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/service"
)

// SettlementWorker drains PENDING settlements in the background.
// It polls at regular intervals and promotes each page to READY.
type SettlementWorker struct {
	settlementService *service.SettlementService
	pollInterval      time.Duration
	stopCh            chan struct{}
}

// NewSettlementWorker creates a new SettlementWorker instance.
func NewSettlementWorker(settlementSvc *service.SettlementService) *SettlementWorker {
	return &SettlementWorker{
		settlementService: settlementSvc,
		pollInterval:      time.Minute,
		stopCh:            make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *SettlementWorker) WithPollInterval(interval time.Duration) *SettlementWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start begins the background worker.
// It runs in a loop until Stop is called or the context is canceled.
func (w *SettlementWorker) Start(ctx context.Context) {
	log.Printf("[SettlementWorker] Starting with poll interval: %v", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SettlementWorker] Context canceled, stopping...")
			return
		case <-w.stopCh:
			log.Println("[SettlementWorker] Stop signal received, stopping...")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *SettlementWorker) Stop() {
	close(w.stopCh)
}

func (w *SettlementWorker) processBatch(ctx context.Context) {
	result, err := w.settlementService.ProcessPending(ctx, nil, nil)
	if err != nil {
		observability.IncrementWorkerRun("settlement", "failed")
		log.Printf("[SettlementWorker] Error processing settlements: %v", err)
		return
	}
	observability.IncrementWorkerRun("settlement", "success")
	if result.Processed > 0 {
		log.Printf("[SettlementWorker] Batch done: processed=%d promoted=%d failed=%d",
			result.Processed, result.Promoted, result.Failed)
	}
}

// ProcessOnce processes a single batch immediately.
// Useful for testing or manual triggering.
func (w *SettlementWorker) ProcessOnce(ctx context.Context) (service.BatchResult, error) {
	return w.settlementService.ProcessPending(ctx, nil, nil)
}

// Run starts the worker and returns a function that can be called to stop it.
func (w *SettlementWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// String returns a string representation of the worker.
func (w *SettlementWorker) String() string {
	return fmt.Sprintf("SettlementWorker(interval=%v)", w.pollInterval)
}
