// Package admin serves the staff dashboard routes. Every route sits behind the admin PIN middleware.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/httputil"
)

// Orders is the part of the order service staff can drive
type Orders interface {
	List(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	MarkRefunded(ctx context.Context, id string) (*domain.Order, error)
}

// Handler serves /api/v1/admin/orders
type Handler struct {
	orders Orders
	logger *zap.Logger
}

// NewHandler creates a new admin handler
func NewHandler(orders Orders, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, logger: logger}
}

// ListResponse wraps a page of orders
type ListResponse struct {
	Orders []*domain.Order `json:"orders"`
	Limit  int32           `json:"limit"`
	Offset int32           `json:"offset"`
}

// StatusRequest moves an order through the kitchen lifecycle
type StatusRequest struct {
	OrderStatus domain.OrderStatus `json:"order_status"`
}

// List handles GET /api/v1/admin/orders
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.OrderFilter{}

	if v := q.Get("payment_status"); v != "" {
		ps := domain.PaymentStatus(v)
		filter.PaymentStatus = &ps
	}
	if v := q.Get("order_status"); v != "" {
		st := domain.OrderStatus(v)
		filter.OrderStatus = &st
	}

	var err error
	if filter.Limit, err = queryInt32(q.Get("limit")); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	if filter.Offset, err = queryInt32(q.Get("offset")); err != nil || filter.Offset < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "offset must be a non-negative number")
		return
	}

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Orders: orders, Limit: limit, Offset: filter.Offset})
}

// UpdateStatus handles PATCH /api/v1/admin/orders/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || req.OrderStatus == "" {
		httputil.WriteError(w, http.StatusBadRequest, "order_status is required")
		return
	}

	id := chi.URLParam(r, "id")
	order, err := h.orders.UpdateOrderStatus(r.Context(), id, req.OrderStatus)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("Order status changed by staff",
		zap.String("order_id", id),
		zap.String("order_status", string(order.OrderStatus)),
	)
	httputil.WriteJSON(w, http.StatusOK, order)
}

// Refund handles POST /api/v1/admin/orders/{id}/refund.
// Money is returned outside this system; this only records it.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.orders.MarkRefunded(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("Order marked refunded", zap.String("order_id", id))
	httputil.WriteJSON(w, http.StatusOK, order)
}

func queryInt32(v string) (int32, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	return int32(n), err
}
