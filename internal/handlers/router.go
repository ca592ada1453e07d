// Package handlers wires the HTTP routes.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/handlers/admin"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/httputil"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/order"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/payment"
	"github.com/kevin07696/mpesa-checkout/pkg/middleware"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
)

// RouterDeps carries everything the router mounts
type RouterDeps struct {
	Payments      *payment.Handler
	Orders        *order.Handler
	Admin         *admin.Handler
	RateLimiter   *middleware.RateLimiter
	Allowlist     *middleware.CallbackAllowlist
	Logger        *zap.Logger
	AdminPIN      string
	Development   bool
	HandlerBudget time.Duration
}

// NewRouter builds the public API.
//
//	POST  /api/v1/orders                          (rate limited)
//	GET   /api/v1/orders/{id}
//	GET   /api/v1/orders/{id}/payment-status
//	POST  /api/v1/mpesa/stk-push                  (rate limited)
//	POST  /api/v1/mpesa/callback                  (allowlisted when configured)
//	*     /api/v1/admin/orders...                 (X-Admin-PIN)
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(observability.HTTPMetrics)
	r.Use(middleware.NewSecurityHeaders(d.Development).Middleware)
	r.Use(chimw.Compress(5, "application/json"))
	if d.HandlerBudget > 0 {
		r.Use(chimw.Timeout(d.HandlerBudget))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	limited := func(h http.HandlerFunc) http.Handler {
		if d.RateLimiter == nil {
			return h
		}
		return d.RateLimiter.Middleware(h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Method(http.MethodPost, "/", limited(d.Orders.Create))
			r.Get("/{id}", d.Orders.Get)
			r.Get("/{id}/payment-status", d.Orders.PaymentStatus)
		})

		r.Route("/mpesa", func(r chi.Router) {
			r.Method(http.MethodPost, "/stk-push", limited(d.Payments.STKPush))

			callback := http.Handler(http.HandlerFunc(d.Payments.Callback))
			if d.Allowlist != nil && d.Allowlist.Enabled() {
				callback = d.Allowlist.Middleware(callback)
			}
			r.Method(http.MethodPost, "/callback", callback)
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(middleware.RequireAdminPIN(d.AdminPIN, d.Logger))
			r.Get("/", d.Admin.List)
			r.Patch("/{id}/status", d.Admin.UpdateStatus)
			r.Post("/{id}/refund", d.Admin.Refund)
		})
	})

	return r
}
