package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/logging"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

const tokenPath = "/oauth/v1/generate?grant_type=client_credentials"

// Credentials are the Daraja app's consumer key and secret
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
}

// TokenFetcher exchanges consumer credentials for a bearer token.
// Tokens are not cached: every push asks for a fresh one.
type TokenFetcher struct {
	httpClient  ports.HTTPClient
	logger      ports.Logger
	backoff     resilience.BackoffStrategy
	baseURL     string
	creds       Credentials
	maxAttempts int
}

// TokenFetcherConfig tunes retries. Zero values fall back to 3 attempts on resilience.TokenBackoff.
type TokenFetcherConfig struct {
	Backoff     resilience.BackoffStrategy
	MaxAttempts int
}

// NewTokenFetcher creates a token fetcher with dependency injection
func NewTokenFetcher(baseURL string, creds Credentials, cfg TokenFetcherConfig, httpClient ports.HTTPClient, logger ports.Logger) *TokenFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.TokenBackoff()
	}
	return &TokenFetcher{
		httpClient:  httpClient,
		logger:      logger,
		backoff:     cfg.Backoff,
		baseURL:     baseURL,
		creds:       creds,
		maxAttempts: cfg.MaxAttempts,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// attemptError records what one token attempt saw
type attemptError struct {
	err    error
	body   []byte
	status int
}

// GetAccessToken returns a bearer token or an *AuthError once every attempt failed.
// Non-2xx statuses, non-JSON bodies and empty tokens are all retried.
func (f *TokenFetcher) GetAccessToken(ctx context.Context) (string, error) {
	var last *attemptError

	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.backoff.NextDelay(attempt - 1)
			f.logger.Warn("retrying mpesa token request",
				ports.Int("attempt", attempt+1),
				ports.Duration("delay", delay),
			)
			if err := resilience.Sleep(ctx, delay); err != nil {
				return "", &AuthError{Err: err, StatusCode: last.status, Body: truncate(last.body), Attempts: attempt}
			}
		}

		token, aerr := f.fetch(ctx)
		if aerr == nil {
			return token, nil
		}
		last = aerr

		f.logger.Warn("mpesa token request failed",
			ports.Int("attempt", attempt+1),
			ports.Int("status", aerr.status),
			ports.Err(aerr.err),
		)
		if ctx.Err() != nil {
			return "", &AuthError{Err: ctx.Err(), StatusCode: last.status, Body: truncate(last.body), Attempts: attempt + 1}
		}
	}

	f.logger.Error("mpesa token request exhausted retries",
		ports.String("consumer_key", logging.Mask(f.creds.ConsumerKey)),
		ports.Int("attempts", f.maxAttempts),
		ports.Int("status", last.status),
	)
	return "", &AuthError{Err: last.err, StatusCode: last.status, Body: truncate(last.body), Attempts: f.maxAttempts}
}

func (f *TokenFetcher) fetch(ctx context.Context) (string, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+tokenPath, nil)
	if err != nil {
		return "", &attemptError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.SetBasicAuth(f.creds.ConsumerKey, f.creds.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &attemptError{err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &attemptError{err: fmt.Errorf("failed to read response body: %w", err), status: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &attemptError{err: fmt.Errorf("unexpected status %d", resp.StatusCode), status: resp.StatusCode, body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &attemptError{err: fmt.Errorf("failed to unmarshal response: %w", err), status: resp.StatusCode, body: body}
	}
	if tr.AccessToken == "" {
		return "", &attemptError{err: errors.New("empty access_token"), status: resp.StatusCode, body: body}
	}

	f.logger.Debug("mpesa token issued",
		ports.Duration("elapsed", time.Since(start)),
		ports.String("expires_in", tr.ExpiresIn),
	)
	return tr.AccessToken, nil
}
