package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fakes"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fixtures"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/mocks"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func paidCallback(checkoutID, receipt string) Callback {
	return Callback{CheckoutRequestID: checkoutID, ResultCode: mpesa.ResultSuccess, ResultDesc: "The service request is processed successfully.", Receipt: receipt}
}

func TestHandleCallback_SuccessMarksPaid(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_123").Build()
	env.store.Put(order)

	outcome, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_123", "QAX123"))
	require.NoError(t, err)
	assert.Equal(t, CallbackPaid, outcome)

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, "QAX123", stored.GetReceipt())
	assert.Equal(t, domain.OrderStatusPreparing, stored.OrderStatus)
	assert.Equal(t, []string{ports.EventPaymentSucceeded}, env.events.Types())
}

func TestHandleCallback_DuplicateSuccessIsNoop(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_123").Build()
	env.store.Put(order)

	_, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_123", "QAX123"))
	require.NoError(t, err)
	first, _ := env.store.GetByID(context.Background(), order.ID)
	writes := env.store.Writes()

	outcome, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_123", "QAX123"))
	require.NoError(t, err)
	assert.Equal(t, CallbackDuplicate, outcome)

	second, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, writes, env.store.Writes())
	assert.Len(t, env.events.Events(), 1, "no second payment.succeeded event")
}

func TestHandleCallback_SuccessWithoutReceipt(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_1").Build()
	env.store.Put(order)

	_, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_1", ""))
	require.NoError(t, err)

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.Receipt)
	assert.Equal(t, "", *stored.Receipt)
}

func TestHandleCallback_CancelledMarksFailedKeepsOrderStatus(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_9").Build()
	env.store.Put(order)

	outcome, err := env.svc.HandleCallback(context.Background(), Callback{CheckoutRequestID: "ws_9", ResultCode: mpesa.ResultCancelledByUser, ResultDesc: "Request cancelled by user"})
	require.NoError(t, err)
	assert.Equal(t, CallbackFailed, outcome)

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, domain.OrderStatusNew, stored.OrderStatus)
	assert.Nil(t, stored.Receipt)
	assert.Equal(t, []string{ports.EventPaymentFailed}, env.events.Types())
}

func TestHandleCallback_UnknownCorrelationID(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_known").Build()
	env.store.Put(order)
	writes := env.store.Writes()

	_, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_unknown", "QAX999"))
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCallbackUnmatched))

	assert.Equal(t, writes, env.store.Writes())
	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Empty(t, env.events.Events())
}

func TestHandleCallback_SecondReceiptOnPaidOrder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := fakes.NewOrderStore()
	events := mocks.NewRecordingPublisher()
	svc := NewService(store, accepting("unused"), validConfig{}, events, resilience.TestTimeoutConfig(), zap.New(core))

	order := fixtures.NewOrder().WithCheckoutID("ws_2").WithPaymentStatus(domain.PaymentStatusPaid).WithReceipt("QAX1").Build()
	store.Put(order)
	writes := store.Writes()

	outcome, err := svc.HandleCallback(context.Background(), paidCallback("ws_2", "QAX2"))
	require.NoError(t, err)
	assert.Equal(t, CallbackDoubleCharge, outcome)
	assert.Equal(t, writes, store.Writes())

	stored, _ := store.GetByID(context.Background(), order.ID)
	assert.Equal(t, "QAX1", stored.GetReceipt())

	alerts := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, alerts, 1)
	assert.Equal(t, "QAX2", alerts[0].ContextMap()["receipt"])
	assert.Equal(t, "QAX1", alerts[0].ContextMap()["stored_receipt"])
	assert.Equal(t, []string{ports.EventDoubleCharge}, events.Types())
}

func TestHandleCallback_UnmatchedSuccessLogsError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(fakes.NewOrderStore(), accepting("unused"), validConfig{}, nil, resilience.TestTimeoutConfig(), zap.New(core))

	_, err := svc.HandleCallback(context.Background(), paidCallback("ws_orphan", "QAX9"))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCallbackUnmatched))
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	_, err = svc.HandleCallback(context.Background(), Callback{CheckoutRequestID: "ws_orphan", ResultCode: 1032})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCallbackUnmatched))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestHandleCallback_FailureAfterPaidIsIgnored(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_1").WithPaymentStatus(domain.PaymentStatusPaid).WithReceipt("QAX1").Build()
	env.store.Put(order)

	outcome, err := env.svc.HandleCallback(context.Background(), Callback{CheckoutRequestID: "ws_1", ResultCode: mpesa.ResultSystemError})
	require.NoError(t, err)
	assert.Equal(t, CallbackIgnored, outcome)

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, "QAX1", stored.GetReceipt())
}

func TestHandleCallback_DoesNotRewindKitchenStatus(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithCheckoutID("ws_1").WithOrderStatus(domain.OrderStatusReady).Build()
	env.store.Put(order)

	_, err := env.svc.HandleCallback(context.Background(), paidCallback("ws_1", "QAX2"))
	require.NoError(t, err)

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusReady, stored.OrderStatus)
}

func TestHandleCallback_UpdateErrorIsAcknowledged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := &mocks.MockOrderRepository{}
	order := fixtures.NewOrder().WithCheckoutID("ws_1").Build()
	store.On("GetByCorrelationID", mock.Anything, "ws_1").Return(order, nil)
	store.On("UpdatePayment", mock.Anything, mock.MatchedBy(func(u ports.PaymentUpdate) bool {
		return u.OrderID == order.ID && u.PaymentStatus == domain.PaymentStatusPaid && *u.Receipt == "QAX123"
	})).Return(false, errors.New("deadlock detected"))

	svc := NewService(store, accepting("unused"), validConfig{}, nil, resilience.TestTimeoutConfig(), zap.New(core))

	outcome, err := svc.HandleCallback(context.Background(), paidCallback("ws_1", "QAX123"))
	require.NoError(t, err)
	assert.Equal(t, CallbackUpdateError, outcome)
	assert.Len(t, logs.FilterMessageSnippet("reconcile manually").All(), 1)
	store.AssertExpectations(t)
}

func TestHandleCallback_LostRaceIsDuplicate(t *testing.T) {
	store := &mocks.MockOrderRepository{}
	order := fixtures.NewOrder().WithCheckoutID("ws_1").Build()
	store.On("GetByCorrelationID", mock.Anything, "ws_1").Return(order, nil)
	store.On("UpdatePayment", mock.Anything, mock.Anything).Return(false, nil)

	events := mocks.NewRecordingPublisher()
	svc := NewService(store, accepting("unused"), validConfig{}, events, resilience.TestTimeoutConfig(), zap.NewNop())

	outcome, err := svc.HandleCallback(context.Background(), paidCallback("ws_1", "QAX123"))
	require.NoError(t, err)
	assert.Equal(t, CallbackDuplicate, outcome)
	assert.Empty(t, events.Events())
}

func TestHandleCallback_LookupFailureIsInternal(t *testing.T) {
	store := &mocks.MockOrderRepository{}
	store.On("GetByCorrelationID", mock.Anything, "ws_1").Return(nil, errors.New("pool closed"))
	svc := NewService(store, accepting("unused"), validConfig{}, nil, resilience.TestTimeoutConfig(), zap.NewNop())

	_, err := svc.HandleCallback(context.Background(), paidCallback("ws_1", "QAX123"))
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeDatabaseError))
}

func TestHandleCallback_MissingCheckoutID(t *testing.T) {
	env := setup(t, accepting("unused"))

	_, err := env.svc.HandleCallback(context.Background(), Callback{ResultCode: 0})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeCallbackMalformed))
}

func TestCallbackFromSTK(t *testing.T) {
	stk, err := mpesa.ParseCallback([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QAX123"}]}}}}`))
	require.NoError(t, err)

	cb := CallbackFromSTK(stk)
	assert.Equal(t, Callback{CheckoutRequestID: "ws_1", MerchantRequestID: "m", ResultDesc: "ok", Receipt: "QAX123", ResultCode: 0}, cb)
}

func TestPaymentStatus(t *testing.T) {
	env := setup(t, accepting("unused"))
	order := fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusPaid).WithReceipt("QAX5").Build()
	env.store.Put(order)

	view, err := env.svc.PaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, view.PaymentStatus)
	assert.Equal(t, "QAX5", view.Receipt)

	_, err = env.svc.PaymentStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
