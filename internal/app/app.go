package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/api"
	"github.com/hansol-dev/marketpay/internal/api/middleware"
	"github.com/hansol-dev/marketpay/internal/bus"
	"github.com/hansol-dev/marketpay/internal/config"
	"github.com/hansol-dev/marketpay/internal/consumer"
	"github.com/hansol-dev/marketpay/internal/db"
	"github.com/hansol-dev/marketpay/internal/domain"
	"github.com/hansol-dev/marketpay/internal/gateway"
	"github.com/hansol-dev/marketpay/internal/idempotency"
	"github.com/hansol-dev/marketpay/internal/observability"
	"github.com/hansol-dev/marketpay/internal/repository"
	"github.com/hansol-dev/marketpay/internal/service"
	"github.com/hansol-dev/marketpay/internal/worker"
)

// Run bootstraps the HTTP server, background workers, and bus consumers,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTIssuer(cfg.JWTIssuer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)

	publisher := bus.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	var gatewayClient gateway.Client
	if cfg.GatewayBaseURL != "" {
		gatewayClient = gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey,
			gateway.WithMaxAttempts(cfg.GatewayMaxAttempts))
	} else {
		logger.Warn("GATEWAY_BASE_URL not set, using simulated gateway")
		gatewayClient = gateway.NewSimulatedClient()
	}

	outboxSvc := service.NewOutboxService(store, publisher)
	depositSvc := service.NewDepositService(store)
	orderSvc := service.NewOrderService(store, outboxSvc, cfg.SettlementFeeRate)
	paymentSvc := service.NewPaymentService(store, gatewayClient, depositSvc, outboxSvc)
	settlementSvc := service.NewSettlementService(store, publisher, cfg.SettlementBatchSize)
	reconciliationSvc := service.NewReconciliationService(store)

	// Background workers
	stopSettlement := worker.NewSettlementWorker(settlementSvc).
		WithPollInterval(cfg.SettlementPollInterval).Run(ctx)
	stopRecovery := worker.NewSettlementRecoveryWorker(settlementSvc).
		WithInterval(cfg.SettlementRecoveryInterval).Run(ctx)
	stopRelay := worker.NewOutboxRelayWorker(outboxSvc).
		WithInterval(cfg.OutboxSweepInterval).
		WithGrace(cfg.OutboxGracePeriod).Run(ctx)
	stopReconciliation := worker.NewReconciliationWorker(reconciliationSvc).
		WithInterval(cfg.ReconciliationInterval).Run(ctx)

	// Bus consumers
	cartLoop := bus.NewConsumerLoop(cfg.KafkaBrokers, cfg.ConsumerGroup,
		domain.TopicCartCreateCommand, consumer.NewCartConsumer(store).Handle)
	depositLoop := bus.NewConsumerLoop(cfg.KafkaBrokers, cfg.ConsumerGroup,
		domain.TopicSettlementReady, consumer.NewDepositConsumer(store, depositSvc).Handle)

	var wg sync.WaitGroup
	for _, loop := range []*bus.ConsumerLoop{cartLoop, depositLoop} {
		wg.Add(1)
		go func(l *bus.ConsumerLoop) {
			defer wg.Done()
			l.Run(ctx)
		}(loop)
	}

	router := api.NewRouter(api.Deps{
		DB:             pool,
		Redis:          redisClient,
		Logger:         logger,
		Idempotency:    idemStore,
		Orders:         orderSvc,
		Payments:       paymentSvc,
		Deposits:       depositSvc,
		Settlements:    settlementSvc,
		Reconciliation: reconciliationSvc,
		PublicRPS:      cfg.PublicRateLimitRPS,
		AuthRPS:        cfg.AuthRateLimitRPS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers and consumers")
	stopSettlement()
	stopRecovery()
	stopRelay()
	stopReconciliation()
	cancel()
	_ = cartLoop.Close()
	_ = depositLoop.Close()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
