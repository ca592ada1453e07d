package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push outcomes
const (
	PushOutcomeAccepted    = "accepted"
	PushOutcomeRejected    = "rejected"
	PushOutcomeAuthFailed  = "auth_failed"
	PushOutcomeGatewayFail = "gateway_error"
	PushOutcomeConfig      = "config_missing"
)

var (
	// STK push metrics
	stkPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_stk_push_total",
		Help: "STK push attempts by outcome",
	}, []string{
		"outcome", // accepted, rejected, auth_failed, gateway_error, config_missing
	})

	stkPushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mpesa_stk_push_duration_seconds",
		Help: "Time from push request to gateway answer, token fetch included",
		// Token retries alone can take 3s; the push call itself is usually 1-5s
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 35},
	}, []string{"outcome"})

	// Callback metrics
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callbacks_total",
		Help: "Gateway callbacks received",
	}, []string{
		"result", // paid, failed, duplicate, double_charge, ignored, unmatched, malformed, update_error
	})

	doubleChargeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_double_charge_suspected_total",
		Help: "Pushes or payments for orders that were already settled",
	}, []string{
		"stage", // push, callback, unmatched
	})

	persistenceDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpesa_persistence_degraded_total",
		Help: "Accepted pushes whose CheckoutRequestID could not be saved",
	})

	ordersAwaitingReconciliation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpesa_orders_awaiting_reconciliation",
		Help: "Pending orders past the reconcile threshold with no CheckoutRequestID",
	})

	// Order metrics
	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created at checkout",
	})

	paidAmountKES = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_amount_kes_total",
		Help: "Sum of order totals confirmed paid, in shillings",
	})

	// Event delivery metrics
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Order and payment events handed to the broker",
	}, []string{
		"event_type",
		"status", // success, failed
	})
)

// RecordPush records one STK push attempt
func RecordPush(outcome string, durationSeconds float64) {
	stkPushTotal.WithLabelValues(outcome).Inc()
	stkPushDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordCallback records how a gateway callback was handled
func RecordCallback(result string) {
	callbacksTotal.WithLabelValues(result).Inc()
}

// RecordPersistenceDegraded counts a lost CheckoutRequestID. Alert on any increase.
func RecordPersistenceDegraded() {
	persistenceDegradedTotal.Inc()
}

// RecordDoubleCharge counts a payment that may have been taken twice. Alert on any increase.
func RecordDoubleCharge(stage string) {
	doubleChargeTotal.WithLabelValues(stage).Inc()
}

// SetOrdersAwaitingReconciliation publishes the latest sweep result
func SetOrdersAwaitingReconciliation(n int) {
	ordersAwaitingReconciliation.Set(float64(n))
}

// RecordOrderCreated counts a checkout
func RecordOrderCreated() {
	ordersCreatedTotal.Inc()
}

// RecordOrderPaid adds a confirmed payment to revenue
func RecordOrderPaid(amount int64) {
	paidAmountKES.Add(float64(amount))
}

// RecordEventPublish records a broker publish attempt
func RecordEventPublish(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
