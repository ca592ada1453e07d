package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

// Gateway sends push payment prompts
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushResult, error)
}

// ConfigValidator reports missing gateway settings without touching the network
type ConfigValidator interface {
	Validate() error
}

// PushRequest asks for a payment prompt on Phone for Amount shillings
type PushRequest struct {
	OrderID string
	Phone   string
	Amount  int64
}

// PushResult is returned once the gateway accepted the push.
// Degraded means the prompt went out but the CheckoutRequestID was not saved,
// so the callback for it will not find the order.
type PushResult struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
	Degraded          bool   `json:"degraded,omitempty"`
}

// Service orchestrates push initiation and gateway callbacks over the order store
type Service struct {
	store      ports.OrderRepository
	gateway    Gateway
	gatewayCfg ConfigValidator
	events     ports.EventPublisher
	timeouts   *resilience.TimeoutConfig
	logger     *zap.Logger
}

// NewService creates a new payment service
func NewService(
	store ports.OrderRepository,
	gateway Gateway,
	gatewayCfg ConfigValidator,
	events ports.EventPublisher,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		store:      store,
		gateway:    gateway,
		gatewayCfg: gatewayCfg,
		events:     events,
		timeouts:   timeouts,
		logger:     logger,
	}
}

// InitiatePush validates the request, sends the push and records the
// correlation id on the order. Amount is pushed as given.
func (s *Service) InitiatePush(ctx context.Context, req PushRequest) (*PushResult, error) {
	if err := validatePush(req); err != nil {
		return nil, err
	}
	if err := s.gatewayCfg.Validate(); err != nil {
		observability.RecordPush(observability.PushOutcomeConfig, 0)
		s.logger.Error("Refusing push: gateway not configured", zap.Error(err))
		return nil, err
	}

	phone := mpesa.NormalizePhone(req.Phone)

	pushCtx, cancel := s.timeouts.PushContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.gateway.STKPush(pushCtx, mpesa.PushRequest{
		Phone:            phone,
		Amount:           req.Amount,
		AccountReference: req.OrderID,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return nil, s.mapGatewayError(req.OrderID, err, elapsed)
	}
	observability.RecordPush(observability.PushOutcomeAccepted, elapsed)

	result := &PushResult{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		CustomerMessage:   res.CustomerMessage,
	}

	// The prompt is already on the payer's phone; losing the caller's
	// context must not also lose the correlation id.
	dbCtx, dbCancel := s.timeouts.DatabaseContext(context.WithoutCancel(ctx))
	defer dbCancel()

	if err := s.store.UpdateCorrelation(dbCtx, req.OrderID, res.CheckoutRequestID); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyPaid) {
			// settled while the push was in flight; a payment for this prompt would be a second charge
			observability.RecordDoubleCharge("push")
			s.logger.Error("STK push sent for an order that is already settled",
				zap.String("order_id", req.OrderID),
				zap.String("checkout_request_id", res.CheckoutRequestID),
				zap.String("merchant_request_id", res.MerchantRequestID),
				zap.Error(err),
			)
			s.publish(dbCtx, ports.EventDoubleCharge, req.OrderID, map[string]interface{}{
				"stage":               "push",
				"checkout_request_id": res.CheckoutRequestID,
			})
			return nil, err
		}

		result.Degraded = true
		observability.RecordPersistenceDegraded()
		s.logger.Error("PersistenceDegraded: push accepted but CheckoutRequestID not saved",
			zap.String("code", string(domain.ErrorCodePersistenceDegraded)),
			zap.String("order_id", req.OrderID),
			zap.String("checkout_request_id", res.CheckoutRequestID),
			zap.String("merchant_request_id", res.MerchantRequestID),
			zap.Error(err),
		)
		s.publish(dbCtx, ports.EventPersistenceDegraded, req.OrderID, map[string]interface{}{
			"checkout_request_id": res.CheckoutRequestID,
			"merchant_request_id": res.MerchantRequestID,
		})
		return result, nil
	}

	s.logger.Info("STK push accepted",
		zap.String("order_id", req.OrderID),
		zap.String("checkout_request_id", res.CheckoutRequestID),
	)
	s.publish(dbCtx, ports.EventPushAccepted, req.OrderID, map[string]interface{}{
		"checkout_request_id": res.CheckoutRequestID,
		"amount":              req.Amount,
	})

	return result, nil
}

// PushOrderRequest is the checkout-facing push. Phone defaults to the
// order's phone; Amount, when given, must match the order total.
type PushOrderRequest struct {
	Amount  *int64
	OrderID string
	Phone   string
}

// PushOrder loads the order, checks it can still be paid and pushes its total
func (s *Service) PushOrder(ctx context.Context, req PushOrderRequest) (*PushResult, error) {
	if req.OrderID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "order_id is required").
			WithDetail("field", "order_id")
	}

	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	order, err := s.store.GetByID(dbCtx, req.OrderID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to load order", err)
	}

	if !order.CanAcceptPush() {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderAlreadyPaid, "order can no longer be paid").
			WithDetail("payment_status", string(order.PaymentStatus))
	}
	if req.Amount != nil && *req.Amount != order.TotalAmount {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount does not match order total").
			WithDetail("total_amount", order.TotalAmount)
	}

	phone := req.Phone
	if phone == "" {
		phone = order.CustomerPhone
	}

	return s.InitiatePush(ctx, PushRequest{
		OrderID: order.ID,
		Phone:   phone,
		Amount:  order.TotalAmount,
	})
}

func validatePush(req PushRequest) error {
	switch {
	case req.OrderID == "":
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "order_id is required").
			WithDetail("field", "order_id")
	case req.Phone == "":
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "phone_number is required").
			WithDetail("field", "phone_number")
	case req.Amount <= 0:
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be greater than zero").
			WithDetail("amount", req.Amount)
	}
	return nil
}

func (s *Service) mapGatewayError(orderID string, err error, elapsed float64) error {
	var (
		authErr *mpesa.AuthError
		rejErr  *mpesa.RejectedError
	)

	switch {
	case errors.As(err, &rejErr):
		observability.RecordPush(observability.PushOutcomeRejected, elapsed)
		s.logger.Warn("STK push rejected by gateway",
			zap.String("order_id", orderID),
			zap.String("response_code", rejErr.ResponseCode),
			zap.String("description", rejErr.Description),
		)
		return domain.WrapError(domain.ErrorCodeGatewayRejected, rejErr.Description, err).
			WithDetail("response_code", rejErr.ResponseCode)

	case errors.As(err, &authErr):
		observability.RecordPush(observability.PushOutcomeAuthFailed, elapsed)
		s.logger.Error("M-Pesa token exchange failed",
			zap.String("order_id", orderID),
			zap.Int("status", authErr.StatusCode),
			zap.Int("attempts", authErr.Attempts),
			zap.String("body", authErr.Body),
			zap.Error(authErr.Err),
		)
		return domain.WrapError(domain.ErrorCodeGatewayAuthFailed, "could not authenticate with M-Pesa", err)

	default:
		observability.RecordPush(observability.PushOutcomeGatewayFail, elapsed)
		s.logger.Error("STK push failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return domain.WrapError(domain.ErrorCodeGatewayError, "M-Pesa request failed", err)
	}
}

// publish is best effort: a broker outage never fails a payment
func (s *Service) publish(ctx context.Context, eventType, orderID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, ports.Event{
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
