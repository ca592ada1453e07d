package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

const (
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// TransactionTypePayBill is used for paybill shortcodes; till numbers use CustomerBuyGoodsOnline
	TransactionTypePayBill = "CustomerPayBillOnline"

	// ResponseCodeAccepted is the only ResponseCode meaning the prompt was sent to the handset
	ResponseCodeAccepted = "0"
)

// TokenSource provides bearer tokens for gateway calls
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Config holds the merchant settings signed into every push
type Config struct {
	BaseURL         string
	ShortCode       string
	Passkey         string
	CallbackURL     string
	TransactionType string
}

// PushRequest is one STK push. Phone must already be normalized.
type PushRequest struct {
	Phone            string
	AccountReference string
	Description      string
	Amount           int64
}

// PushResult is an accepted push
type PushResult struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// stkPushResponse covers both the normal reply and Daraja's error envelope
type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Client sends STK push requests to Daraja
type Client struct {
	tokens     TokenSource
	httpClient ports.HTTPClient
	logger     ports.Logger
	breaker    *resilience.CircuitBreaker
	now        func() time.Time
	config     Config
}

// NewClient creates a push client with dependency injection.
// A nil breaker gets the default configuration, counting only transport faults.
func NewClient(config Config, tokens TokenSource, httpClient ports.HTTPClient, logger ports.Logger, breaker *resilience.CircuitBreaker) *Client {
	if config.TransactionType == "" {
		config.TransactionType = TransactionTypePayBill
	}
	if breaker == nil {
		cbCfg := resilience.DefaultCircuitBreakerConfig()
		cbCfg.IsFailure = IsTransportFault
		breaker = resilience.NewCircuitBreaker(cbCfg)
	}
	return &Client{
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		breaker:    breaker,
		now:        time.Now,
		config:     config,
	}
}

// IsTransportFault reports whether err says something about gateway health.
// Declines and caller cancellations do not.
func IsTransportFault(err error) bool {
	if err == nil || IsRejected(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// STKPush fetches a token and asks the gateway to prompt the payer.
// A decline is returned as *RejectedError, an exhausted token exchange as
// *AuthError, and anything unparseable as *ResponseError.
func (c *Client) STKPush(ctx context.Context, req PushRequest) (*PushResult, error) {
	var result *PushResult
	err := c.breaker.Call(func() error {
		token, err := c.tokens.GetAccessToken(ctx)
		if err != nil {
			return err
		}
		result, err = c.push(ctx, token, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		c.logger.Warn("mpesa circuit breaker refused push",
			ports.String("account_reference", req.AccountReference),
			ports.String("state", c.breaker.State().String()),
		)
	}
	return result, err
}

func (c *Client) push(ctx context.Context, token string, req PushRequest) (*PushResult, error) {
	ts := Timestamp(c.now())
	desc := req.Description
	if desc == "" {
		desc = "Payment for order " + req.AccountReference
	}

	payload, err := json.Marshal(stkPushBody{
		BusinessShortCode: c.config.ShortCode,
		Password:          Password(c.config.ShortCode, c.config.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   c.config.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   desc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending mpesa stk push",
		ports.String("account_reference", req.AccountReference),
		ports.Int64("amount", req.Amount),
	)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stk push request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
	if err != nil {
		return nil, &ResponseError{StatusCode: httpResp.StatusCode, Err: err}
	}

	var resp stkPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ResponseError{StatusCode: httpResp.StatusCode, Body: truncate(body), Err: err}
	}

	switch {
	case resp.ErrorMessage != "" || resp.ErrorCode != "":
		return nil, &RejectedError{ResponseCode: resp.ErrorCode, Description: resp.ErrorMessage, StatusCode: httpResp.StatusCode}
	case resp.ResponseCode == "":
		return nil, &ResponseError{StatusCode: httpResp.StatusCode, Body: truncate(body)}
	case resp.ResponseCode != ResponseCodeAccepted:
		desc := resp.ResponseDescription
		if desc == "" {
			desc = "STK Push failed"
		}
		return nil, &RejectedError{ResponseCode: resp.ResponseCode, Description: desc, StatusCode: httpResp.StatusCode}
	case resp.CheckoutRequestID == "":
		return nil, &ResponseError{StatusCode: httpResp.StatusCode, Body: truncate(body), Err: errors.New("accepted push without CheckoutRequestID")}
	}

	c.logger.Info("mpesa stk push accepted",
		ports.String("account_reference", req.AccountReference),
		ports.String("checkout_request_id", resp.CheckoutRequestID),
		ports.Duration("elapsed", time.Since(start)),
	)

	return &PushResult{
		CheckoutRequestID:   resp.CheckoutRequestID,
		MerchantRequestID:   resp.MerchantRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}, nil
}
