package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/httputil"
	paymentsvc "github.com/kevin07696/mpesa-checkout/internal/services/payment"
)

// Service is the part of the payment service the HTTP layer calls
type Service interface {
	PushOrder(ctx context.Context, req paymentsvc.PushOrderRequest) (*paymentsvc.PushResult, error)
	HandleCallback(ctx context.Context, cb paymentsvc.Callback) (paymentsvc.CallbackOutcome, error)
}

// Handler serves the push initiation and gateway callback routes
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// STKPushRequest is the checkout page's push request
type STKPushRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	PhoneNumber string           `json:"phone_number"`
	OrderID     string           `json:"order_id"`
}

// STKPushResponse is returned once the prompt was sent to the phone
type STKPushResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
	Success           bool   `json:"success"`
}

// STKPush handles POST /api/v1/mpesa/stk-push
func (h *Handler) STKPush(w http.ResponseWriter, r *http.Request) {
	var req STKPushRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.OrderID) == "" || req.Amount == nil {
		httputil.WriteError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	amount, err := wholeShillings(*req.Amount)
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	result, err := h.service.PushOrder(r.Context(), paymentsvc.PushOrderRequest{
		OrderID: strings.TrimSpace(req.OrderID),
		Phone:   req.PhoneNumber,
		Amount:  &amount,
	})
	if err != nil {
		httputil.WriteDomainError(w, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, STKPushResponse{
		Success:           true,
		CheckoutRequestID: result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		CustomerMessage:   result.CustomerMessage,
	})
}

// wholeShillings accepts positive integral amounts; M-Pesa has no cents
func wholeShillings(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be greater than zero")
	}
	if !d.IsInteger() {
		return 0, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be a whole number of shillings").
			WithDetail("amount", d.String())
	}
	return d.IntPart(), nil
}

// Callback handles POST /api/v1/mpesa/callback from the gateway.
// Once the order is found the gateway always gets 200 so it stops redelivering.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid callback data")
		return
	}

	stk, err := mpesa.ParseCallback(body)
	if err != nil {
		h.logger.Warn("Malformed M-Pesa callback",
			zap.Error(err),
			zap.Int("body_bytes", len(body)),
		)
		httputil.WriteError(w, http.StatusBadRequest, "Invalid callback data")
		return
	}

	outcome, err := h.service.HandleCallback(r.Context(), paymentsvc.CallbackFromSTK(stk))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCallbackUnmatched):
			httputil.WriteError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, domain.ErrCallbackMalformed):
			httputil.WriteError(w, http.StatusBadRequest, "Invalid callback data")
		default:
			h.logger.Error("Callback processing failed",
				zap.String("checkout_request_id", stk.CheckoutRequestID),
				zap.Error(err),
			)
			httputil.WriteError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.logger.Info("M-Pesa callback processed",
		zap.String("checkout_request_id", stk.CheckoutRequestID),
		zap.Int("result_code", stk.Code()),
		zap.String("outcome", string(outcome)),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
