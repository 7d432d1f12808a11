package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrTimeout indicates the upstream call timed out.
	ErrTimeout = errors.New("provider timeout")

	// ErrNoCredentials indicates a provider client cannot be built because
	// no API key is configured. Pools skip such providers.
	ErrNoCredentials = errors.New("provider credentials not configured")
)

// StatusError carries the HTTP status returned by an upstream API.
// It unwraps to the sentinel matching the status class, so callers can
// use errors.Is without caring about the concrete provider.
type StatusError struct {
	Provider   Name
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the sentinel taxonomy.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, 529: // 529: Anthropic "overloaded"
		return ErrProviderDown
	default:
		return nil
	}
}

// ClassifyTransport maps a failure that never produced an HTTP response.
// Context errors pass through untouched, network errors wrap
// ErrProviderDown, and anything else is returned as is.
func ClassifyTransport(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrProviderDown, err)
	}
	return err
}

// nonRetryable is implemented by errors that must never be retried
// regardless of what they wrap.
type nonRetryable interface {
	NonRetryable() bool
}

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr nonRetryable
	if errors.As(err, &nr) && nr.NonRetryable() {
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
