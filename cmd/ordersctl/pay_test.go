package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/mpesa-checkout/internal/poller"
)

type fakeAPI struct {
	pushed   map[string]interface{}
	checks   int32
	paidFrom int32
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/orders/ord-1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "ord-1", "order_number": "MO-261016-0007", "customer_phone": "254712345678", "total_amount": 850,
		})
	})
	mux.HandleFunc("/api/v1/mpesa/stk-push", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.pushed)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "checkoutRequestId": "ws_CO_1"})
	})
	mux.HandleFunc("/api/v1/orders/ord-1/payment-status", func(w http.ResponseWriter, _ *http.Request) {
		status := "pending"
		if atomic.AddInt32(&f.checks, 1) >= f.paidFrom {
			status = "paid"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"order_id": "ord-1", "payment_status": status})
	})
	return mux
}

func runTestPay(t *testing.T, api *fakeAPI, phone string, wait bool, attempts int) (string, error) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	client := newAPIClient(srv.URL)
	p := poller.New(poller.NewHTTPStatusReader(client.baseURL, client.http))
	p.Interval = time.Millisecond
	p.MaxAttempts = attempts

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	err := runPay(cmd, client, p, "ord-1", phone, wait)
	return out.String(), err
}

func TestRunPay_WaitsForPaid(t *testing.T) {
	api := &fakeAPI{paidFrom: 3}

	out, err := runTestPay(t, api, "", true, 10)

	require.NoError(t, err)
	assert.Equal(t, "254712345678", api.pushed["phone_number"])
	assert.EqualValues(t, 850, api.pushed["amount"])
	assert.Contains(t, out, "MO-261016-0007 paid after 3 checks")
}

func TestRunPay_TimesOut(t *testing.T) {
	api := &fakeAPI{paidFrom: 100}

	_, err := runTestPay(t, api, "0722000111", true, 4)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confirmation after 4 checks")
	assert.Equal(t, "0722000111", api.pushed["phone_number"])
}

func TestRunPay_NoWait(t *testing.T) {
	api := &fakeAPI{paidFrom: 1}

	out, err := runTestPay(t, api, "", false, 10)

	require.NoError(t, err)
	assert.Contains(t, out, "checkout ws_CO_1")
	assert.Zero(t, atomic.LoadInt32(&api.checks))
}

func TestAPIClient_SurfacesErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"order can no longer be paid","code":"ORDER_ALREADY_PAID"}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL).push(context.Background(), "ord-1", "0712345678", 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDER_ALREADY_PAID")
}
