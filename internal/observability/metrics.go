package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	gatewayAttemptCounter  *prometheus.CounterVec
	settlementCounter      *prometheus.CounterVec
	outboxCounter          *prometheus.CounterVec
	consumerCounter        *prometheus.CounterVec
	ledgerImbalanceCounter prometheus.Counter
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		gatewayAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_attempts_total",
			Help: "Payment gateway call attempts by operation and outcome",
		}, []string{"operation", "outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_transitions_total",
			Help: "Settlement state transitions",
		}, []string{"to_status"})

		outboxCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox event lifecycle actions",
		}, []string{"action"})

		consumerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Bus consumer outcomes by topic",
		}, []string{"topic", "outcome"})

		ledgerImbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of accounts whose balance diverged from the entry log",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			gatewayAttemptCounter,
			settlementCounter,
			outboxCounter,
			consumerCounter,
			ledgerImbalanceCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementGatewayAttempt(operation, outcome string) {
	if gatewayAttemptCounter == nil {
		return
	}
	gatewayAttemptCounter.WithLabelValues(operation, outcome).Inc()
}

func IncrementSettlementTransition(toStatus string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(toStatus).Inc()
}

func IncrementOutboxEvent(action string) {
	if outboxCounter == nil {
		return
	}
	outboxCounter.WithLabelValues(action).Inc()
}

func IncrementConsumerMessage(topic, outcome string) {
	if consumerCounter == nil {
		return
	}
	consumerCounter.WithLabelValues(topic, outcome).Inc()
}

func IncrementLedgerImbalance() {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
