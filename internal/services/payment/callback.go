package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
)

// CallbackOutcome says what a callback did to its order
type CallbackOutcome string

const (
	CallbackPaid         CallbackOutcome = "paid"
	CallbackFailed       CallbackOutcome = "failed"
	CallbackDuplicate    CallbackOutcome = "duplicate"
	CallbackDoubleCharge CallbackOutcome = "double_charge"
	CallbackIgnored      CallbackOutcome = "ignored"
	CallbackUpdateError  CallbackOutcome = "update_error"
)

// Callback is a parsed gateway result for one push attempt
type Callback struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultDesc        string
	Receipt           string
	ResultCode        int
}

// CallbackFromSTK converts the wire payload
func CallbackFromSTK(cb *mpesa.STKCallback) Callback {
	return Callback{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultDesc:        cb.ResultDesc,
		Receipt:           cb.Receipt(),
		ResultCode:        cb.Code(),
	}
}

// HandleCallback applies a gateway result to the matching order.
//
// Errors are returned only when no order could be matched (CALLBACK_UNMATCHED),
// the input is unusable (CALLBACK_MALFORMED) or the lookup itself failed.
// Once the order is found the callback is always acknowledged: a failed
// update is logged for manual reconciliation and reported as CallbackUpdateError.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (CallbackOutcome, error) {
	if cb.CheckoutRequestID == "" {
		observability.RecordCallback("malformed")
		return "", domain.WrapError(domain.ErrorCodeCallbackMalformed, "missing CheckoutRequestID", mpesa.ErrMalformedCallback)
	}

	dbCtx, cancel := s.timeouts.DatabaseContext(context.WithoutCancel(ctx))
	defer cancel()

	order, err := s.store.GetByCorrelationID(dbCtx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			observability.RecordCallback("unmatched")
			fields := []zap.Field{
				zap.String("checkout_request_id", cb.CheckoutRequestID),
				zap.String("merchant_request_id", cb.MerchantRequestID),
				zap.Int("result_code", cb.ResultCode),
			}
			if cb.ResultCode == mpesa.ResultSuccess {
				// money moved but no order carries this id
				observability.RecordDoubleCharge("unmatched")
				s.logger.Error("Payment received for unknown CheckoutRequestID",
					append(fields, zap.String("receipt", cb.Receipt))...)
			} else {
				s.logger.Warn("Callback for unknown CheckoutRequestID", fields...)
			}
			return "", domain.WrapError(domain.ErrorCodeCallbackUnmatched, "no order matches callback", err).
				WithDetail("checkout_request_id", cb.CheckoutRequestID)
		}
		s.logger.Error("Callback order lookup failed",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
		return "", domain.WrapError(domain.ErrorCodeDatabaseError, "failed to look up order", err)
	}

	info := mpesa.GetResultCode(cb.ResultCode)
	target := domain.PaymentStatusFailed
	if cb.ResultCode == mpesa.ResultSuccess {
		target = domain.PaymentStatusPaid
	}

	if target == domain.PaymentStatusPaid && order.PaymentStatus == domain.PaymentStatusPaid &&
		cb.Receipt != "" && order.GetReceipt() != "" && cb.Receipt != order.GetReceipt() {
		observability.RecordCallback("double_charge")
		observability.RecordDoubleCharge("callback")
		s.logger.Error("Second payment received for a paid order; refund required",
			zap.String("order_id", order.ID),
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.String("stored_receipt", order.GetReceipt()),
			zap.String("receipt", cb.Receipt),
		)
		s.publish(dbCtx, ports.EventDoubleCharge, order.ID, map[string]interface{}{
			"stage":          "callback",
			"order_number":   order.OrderNumber,
			"stored_receipt": order.GetReceipt(),
			"receipt":        cb.Receipt,
		})
		return CallbackDoubleCharge, nil
	}

	if order.PaymentStatus == target {
		observability.RecordCallback("duplicate")
		s.logger.Info("Duplicate callback ignored",
			zap.String("order_id", order.ID),
			zap.String("payment_status", string(order.PaymentStatus)),
		)
		return CallbackDuplicate, nil
	}
	if !order.CanTransitionPayment(target) {
		observability.RecordCallback("ignored")
		s.logger.Warn("Callback would move payment backwards; ignored",
			zap.String("order_id", order.ID),
			zap.String("payment_status", string(order.PaymentStatus)),
			zap.String("callback_status", string(target)),
			zap.Int("result_code", cb.ResultCode),
		)
		return CallbackIgnored, nil
	}

	update := ports.PaymentUpdate{OrderID: order.ID, PaymentStatus: target}
	if target == domain.PaymentStatusPaid {
		receipt := cb.Receipt
		update.Receipt = &receipt
		if order.OrderStatus == domain.OrderStatusNew {
			next := domain.OrderStatusPreparing
			update.OrderStatus = &next
		}
	}

	changed, err := s.store.UpdatePayment(dbCtx, update)
	if err != nil {
		observability.RecordCallback("update_error")
		s.logger.Error("Callback update failed; reconcile manually",
			zap.String("order_id", order.ID),
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.String("target_status", string(target)),
			zap.String("receipt", cb.Receipt),
			zap.Int("result_code", cb.ResultCode),
			zap.Error(err),
		)
		return CallbackUpdateError, nil
	}
	if !changed {
		// another delivery of the same callback won the race
		observability.RecordCallback("duplicate")
		return CallbackDuplicate, nil
	}

	if target == domain.PaymentStatusPaid {
		observability.RecordCallback("paid")
		observability.RecordOrderPaid(order.TotalAmount)
		s.logger.Info("Payment confirmed",
			zap.String("order_id", order.ID),
			zap.String("receipt", cb.Receipt),
		)
		s.publish(dbCtx, ports.EventPaymentSucceeded, order.ID, map[string]interface{}{
			"order_number": order.OrderNumber,
			"receipt":      cb.Receipt,
			"amount":       order.TotalAmount,
		})
		return CallbackPaid, nil
	}

	observability.RecordCallback("failed")
	s.logger.Info("Payment failed",
		zap.String("order_id", order.ID),
		zap.Int("result_code", cb.ResultCode),
		zap.String("result_desc", cb.ResultDesc),
	)
	s.publish(dbCtx, ports.EventPaymentFailed, order.ID, map[string]interface{}{
		"order_number": order.OrderNumber,
		"result_code":  cb.ResultCode,
		"result_desc":  cb.ResultDesc,
		"message":      info.UserMessage,
	})
	return CallbackFailed, nil
}

// StatusView is what the payer's poller sees
type StatusView struct {
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	OrderStatus   domain.OrderStatus   `json:"order_status"`
	Receipt       string               `json:"mpesa_receipt,omitempty"`
}

// PaymentStatus reads the order's current payment state
func (s *Service) PaymentStatus(ctx context.Context, orderID string) (*StatusView, error) {
	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	order, err := s.store.GetByID(dbCtx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load order", err)
	}
	return &StatusView{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		Receipt:       order.GetReceipt(),
	}, nil
}
