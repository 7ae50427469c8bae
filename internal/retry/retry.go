// Package retry executes PMS adapter calls under an exponential-backoff
// policy. Server errors (5xx), network failures, and timeouts are
// retryable; client errors (4xx) fail immediately. Terminal failures carry
// the full attempt history for diagnostics.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmsgw/internal/metrics"
	"pmsgw/internal/transport"
)

// Policy controls retry behavior for one operation. Total attempts are
// MaxRetries + 1.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	Multiplier    float64 // defaults to 2
	FatalTimeouts bool    // treat transport timeouts as non-retryable
}

// Attempt records the outcome of a single try.
type Attempt struct {
	N      int
	Status int // 0 when the failure was not an HTTP response
	Err    string
	Delay  time.Duration // backoff slept before this attempt
}

// IntegrationError is the terminal failure of a vendor operation, raised
// either on a fatal classification or after retries are exhausted.
type IntegrationError struct {
	Vendor     string
	Op         string
	LastStatus int
	Attempts   []Attempt
	Err        error
}

func (e *IntegrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed after %d attempt(s)", e.Vendor, e.Op, len(e.Attempts))
	if e.LastStatus != 0 {
		fmt.Fprintf(&b, " (last status %d)", e.LastStatus)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// Func is one attempt of the wrapped operation.
type Func func(ctx context.Context) ([]byte, error)

// Do runs fn under the policy and returns its result or an
// *IntegrationError once the policy gives up.
func Do(ctx context.Context, vendor, op string, p Policy, fn Func) ([]byte, error) {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	var attempts []Attempt
	delay := time.Duration(0)

	for n := 0; ; n++ {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				attempts = append(attempts, Attempt{N: n + 1, Err: ctx.Err().Error(), Delay: delay})
				return nil, &IntegrationError{Vendor: vendor, Op: op, LastStatus: lastStatus(attempts), Attempts: attempts, Err: ctx.Err()}
			case <-t.C:
			}
		}

		body, err := fn(ctx)
		if err == nil {
			return body, nil
		}
		status := statusOf(err)
		attempts = append(attempts, Attempt{N: n + 1, Status: status, Err: err.Error(), Delay: delay})

		if n >= p.MaxRetries || !Retryable(err, p) {
			return nil, &IntegrationError{
				Vendor:     vendor,
				Op:         op,
				LastStatus: status,
				Attempts:   attempts,
				Err:        err,
			}
		}

		metrics.RetryAttempts.WithLabelValues(vendor, op).Inc()
		if delay == 0 {
			delay = p.InitialDelay
		} else {
			delay = time.Duration(float64(delay) * mult)
		}
	}
}

// Retryable classifies an error under the policy: HTTP 5xx, timeouts
// (unless FatalTimeouts), and transport-level failures retry; 4xx do not.
func Retryable(err error, p Policy) bool {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	if transport.IsTimeout(err) {
		return !p.FatalTimeouts
	}
	// Network-level failure with no HTTP response.
	return true
}

func statusOf(err error) int {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func lastStatus(attempts []Attempt) int {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Status != 0 {
			return attempts[i].Status
		}
	}
	return 0
}
