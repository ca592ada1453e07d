package order

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/httputil"
	ordersvc "github.com/kevin07696/mpesa-checkout/internal/services/order"
	paymentsvc "github.com/kevin07696/mpesa-checkout/internal/services/payment"
)

// Orders is the part of the order service the checkout routes call
type Orders interface {
	Create(ctx context.Context, req ordersvc.CreateOrderRequest) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// StatusReader answers the payer's poller
type StatusReader interface {
	PaymentStatus(ctx context.Context, orderID string) (*paymentsvc.StatusView, error)
}

// Handler serves the customer-facing order routes
type Handler struct {
	orders Orders
	status StatusReader
	logger *zap.Logger
}

// NewHandler creates a new order handler
func NewHandler(orders Orders, status StatusReader, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, status: status, logger: logger}
}

// Create handles POST /api/v1/orders
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req ordersvc.CreateOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.Create(r.Context(), req)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, order)
}

// Get handles GET /api/v1/orders/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, order)
}

// PaymentStatus handles GET /api/v1/orders/{id}/payment-status.
// The body is the bare status view; pollers read payment_status at the top level.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	view, err := h.status.PaymentStatus(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, view)
}
