package cfn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

// DefaultRetryMax is the default maximum number of retries for transient errors.
const DefaultRetryMax = 3

// RetryPolicy defines retry behavior for transient delivery errors.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// RetryWithBackoff executes fn with exponential backoff and jitter.
// It retries only if shouldRetry returns true for the error.
func RetryWithBackoff(ctx context.Context, policy *RetryPolicy, fn func() error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < policy.MaxRetries {
			delay := backoffDelay(attempt, policy.BaseDelay, policy.MaxDelay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxRetries, lastErr)
}

// backoffDelay returns exponential backoff with jitter.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	return time.Duration(rand.Float64() * backoff)
}

var transientAPICodes = map[string]bool{
	"ThrottlingException":         true,
	"TooManyRequestsException":    true,
	"RequestTimeout":              true,
	"RequestTimeoutException":     true,
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
	"InternalFailure":             true,
	"InternalServerError":         true,
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"TLS handshake",
	"i/o timeout",
	"temporary failure",
}

// IsTransientError reports whether an error is likely transient and worth
// retrying. It checks smithy API error codes first, then common throttling
// and network failure message patterns.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientAPICodes[apiErr.ErrorCode()]
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
