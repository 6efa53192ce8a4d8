package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"marketplace-settlement/pkg/jwt"
	"marketplace-settlement/pkg/middleware"
	"marketplace-settlement/pkg/response"
)

// RouterConfig carries everything the router mounts
type RouterConfig struct {
	Vendor         *VendorPayoutController
	Admin          *AdminController
	Orders         *OrderController
	Webhooks       *WebhookController
	JWTManager     *jwt.JWTManager
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter registers the settlement API routes and middleware stack
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(cfg.Logger.Named("http")))
	r.Use(middleware.RecoveryMiddleware(cfg.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.SendSuccess(w, r, map[string]string{"status": "healthy", "service": "marketplace-settlement"})
	})

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Post("/webhooks/payouts/{provider}", cfg.Webhooks.Receive)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuthMiddleware(cfg.JWTManager))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(jwt.RoleSeller))
			r.Post("/payout-account", cfg.Vendor.CreatePayoutAccount)
			r.Get("/payout-account", cfg.Vendor.GetPayoutAccount)
			r.Post("/payout-account/sync", cfg.Vendor.SyncPayoutAccount)
			r.Get("/balances", cfg.Vendor.GetBalances)
			r.Get("/transactions", cfg.Vendor.ListTransactions)
			r.Get("/payouts", cfg.Vendor.ListPayouts)
			r.Get("/payouts/{id}", cfg.Vendor.GetPayout)
			r.Group(func(r chi.Router) {
				if cfg.RateLimiter != nil {
					r.Use(cfg.RateLimiter.Middleware)
				}
				r.Post("/payouts", cfg.Vendor.RequestPayout)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(jwt.RoleAdmin))
			r.Post("/commission/rules", cfg.Admin.UpsertRule)
			r.Get("/commission/rules", cfg.Admin.ListRules)
			r.Get("/orders/{orderID}/commission-lines", cfg.Admin.ListOrderCommission)
			r.Post("/payouts/{id}/reverse", cfg.Admin.ReversePayout)
			r.Get("/accounts/{accountID}/reconciliation", cfg.Admin.Reconcile)
			r.Post("/accounts/{accountID}/balance-deltas", cfg.Admin.ApplyBalanceDelta)
		})

		r.Route("/internal/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(jwt.RoleService))
			r.Post("/captured", cfg.Orders.Captured)
			r.Post("/canceled", cfg.Orders.Canceled)
		})
	})

	return r
}
