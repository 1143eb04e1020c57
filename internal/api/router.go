package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hansol-dev/marketpay/internal/api/handler"
	"github.com/hansol-dev/marketpay/internal/api/middleware"
	"github.com/hansol-dev/marketpay/internal/idempotency"
	"github.com/hansol-dev/marketpay/internal/service"
)

// Deps carries everything the router wires together.
type Deps struct {
	DB             *pgxpool.Pool
	Redis          redis.Cmdable
	Logger         *zap.Logger
	Idempotency    *idempotency.Store
	Orders         *service.OrderService
	Payments       *service.PaymentService
	Deposits       *service.DepositService
	Settlements    *service.SettlementService
	Reconciliation *service.ReconciliationService
	PublicRPS      int
	AuthRPS        int
}

func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(deps.Logger))
	r.Use(middleware.LoggingMiddleware(deps.Logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(deps.DB, deps.Redis)
	orderHandler := handler.NewOrderHandler(deps.Orders)
	paymentHandler := handler.NewPaymentHandler(deps.Payments)
	depositHandler := handler.NewDepositHandler(deps.Deposits)
	settlementHandler := handler.NewSettlementHandler(deps.Settlements)
	adminHandler := handler.NewAdminHandler(deps.Reconciliation)

	if deps.PublicRPS <= 0 {
		deps.PublicRPS = 20
	}
	if deps.AuthRPS <= 0 {
		deps.AuthRPS = 50
	}

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(deps.PublicRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(deps.AuthRPS))

		// Orders
		r.Post("/v1/orders", orderHandler.CreateOrder)
		r.Get("/v1/orders/{id}", orderHandler.GetOrder)
		r.Post("/v1/orders/{id}/confirm-purchase", orderHandler.ConfirmPurchase)

		// Payments
		r.With(middleware.IdempotencyMiddleware(deps.Idempotency, deps.Logger)).
			Post("/v1/payments/confirm", paymentHandler.ConfirmPayment)
		r.Post("/v1/payments/{orderID}/refund", paymentHandler.Refund)
		r.Get("/v1/payments/by-order/{orderID}", paymentHandler.GetByOrder)

		// Deposits
		r.Post("/v1/deposits/charge", depositHandler.Charge)
		r.Post("/v1/deposits/withdraw", depositHandler.Withdraw)
		r.Get("/v1/deposits/balance", depositHandler.GetBalance)
		r.Get("/v1/deposits/statement", depositHandler.GetStatement)

		// Settlements
		r.Get("/v1/settlements", settlementHandler.ListMine)
		r.Get("/v1/settlements/{id}", settlementHandler.GetSettlement)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/v1/admin/settlements/run", settlementHandler.TriggerBatch)
			r.Post("/v1/admin/settlements/recover", settlementHandler.TriggerRecovery)
			r.Post("/v1/admin/reconciliation/run", adminHandler.RunReconciliation)
		})
	})

	return r
}
