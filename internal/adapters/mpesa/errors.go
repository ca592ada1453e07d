package mpesa

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds how much of an upstream body is kept for diagnostics
const maxErrorBody = 256

// AuthError is returned when the token exchange failed on every attempt.
// StatusCode is zero when the last attempt never got an HTTP response.
type AuthError struct {
	Err        error
	Body       string
	StatusCode int
	Attempts   int
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("mpesa: token request failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("mpesa: token request failed after %d attempts: status %d: %s", e.Attempts, e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RejectedError means the push reached the gateway and was declined.
// Description is the gateway's text and is safe to show to the payer.
type RejectedError struct {
	ResponseCode string
	Description  string
	StatusCode   int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("mpesa: push rejected (%s): %s", e.ResponseCode, e.Description)
}

// ResponseError is a response the client could not interpret
type ResponseError struct {
	Err        error
	Body       string
	StatusCode int
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa: unexpected response (status %d): %v: %s", e.StatusCode, e.Err, e.Body)
	}
	return fmt.Sprintf("mpesa: unexpected response (status %d): %s", e.StatusCode, e.Body)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a gateway decline rather than a fault
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

func truncate(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "..."
}
