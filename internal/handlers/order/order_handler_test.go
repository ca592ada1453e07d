package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/poller"
	ordersvc "github.com/kevin07696/mpesa-checkout/internal/services/order"
	paymentsvc "github.com/kevin07696/mpesa-checkout/internal/services/payment"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fakes"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fixtures"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func newServer(t *testing.T) (*httptest.Server, *fakes.OrderStore) {
	t.Helper()
	store := fakes.NewOrderStore()
	logger := zaptest.NewLogger(t)
	timeouts := resilience.TestTimeoutConfig()

	orders := ordersvc.NewService(store, nil, timeouts, logger)
	payments := paymentsvc.NewService(store, nil, nil, nil, timeouts, logger)
	h := NewHandler(orders, payments, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/orders", h.Create)
	r.Get("/api/v1/orders/{id}", h.Get)
	r.Get("/api/v1/orders/{id}/payment-status", h.PaymentStatus)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestCreate_ReturnsOrderWithTotal(t *testing.T) {
	srv, store := newServer(t)

	body := `{
		"customer_name": "Brian Otieno",
		"customer_phone": "0722 000 111",
		"items": [
			{"menu_item_id": "m-1", "menu_item_name": "Nyama Choma", "quantity": 2, "unit_price": 650},
			{"menu_item_id": "m-2", "menu_item_name": "Chapati", "quantity": 3, "unit_price": 40}
		]
	}`
	resp, err := http.Post(srv.URL+"/api/v1/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(1420), got.TotalAmount)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, domain.OrderStatusNew, got.OrderStatus)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 1, store.Writes())
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "bad json", body: `[`},
		{name: "no items", body: `{"customer_name":"A","customer_phone":"0712345678","items":[]}`, code: string(domain.ErrorCodeValidationFailed)},
		{name: "no name", body: `{"customer_phone":"0712345678","items":[{"menu_item_id":"m","menu_item_name":"x","quantity":1,"unit_price":10}]}`, code: string(domain.ErrorCodeValidationMissingField)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newServer(t)

			resp, err := http.Post(srv.URL+"/api/v1/orders", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
			assert.Zero(t, store.Writes())
		})
	}
}

func TestGet(t *testing.T) {
	srv, store := newServer(t)
	order := fixtures.NewOrder().Build()
	store.Put(order)

	resp, err := http.Get(srv.URL + "/api/v1/orders/" + order.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	missing, err := http.Get(srv.URL + "/api/v1/orders/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestPaymentStatus_ReadableByPoller(t *testing.T) {
	srv, store := newServer(t)
	order := fixtures.NewOrder().
		WithPaymentStatus(domain.PaymentStatusPaid).
		WithReceipt("NLJ7RT61SV").
		Build()
	store.Put(order)

	resp, err := http.Get(srv.URL + "/api/v1/orders/" + order.ID + "/payment-status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var view paymentsvc.StatusView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, domain.PaymentStatusPaid, view.PaymentStatus)
	assert.Equal(t, "NLJ7RT61SV", view.Receipt)

	reader := poller.NewHTTPStatusReader(srv.URL, srv.Client())
	status, err := reader.ReadStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, status)
}
