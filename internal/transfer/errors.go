package transfer

import (
	"fmt"
	"time"
)

// NetworkError represents network failures and HTTP error responses,
// including 5xx bodies, connection resets and timeouts.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "fetch", "authenticate")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError represents an HTTP 429 response. It carries the wait the
// server mandated, if any, so the retry policy can honor it verbatim.
type RateLimitError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited during %s, retry after %s", e.Operation, e.RetryAfter)
	}

	return fmt.Sprintf("rate limited during %s", e.Operation)
}

// AuthenticationError represents credential acquisition or authorization
// failures, including 401 Unauthorized and 403 Forbidden responses.
type AuthenticationError struct {
	Provider string // The provider that rejected the credentials
	Err      error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for provider %s", e.Provider)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
