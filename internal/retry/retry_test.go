package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsgw/internal/transport"
)

func apiErr(status int) error {
	return &transport.APIError{Method: "GET", URL: "/x", Status: status, Snippet: "boom"}
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "CLOUDBEDS", "getReservations",
		Policy{MaxRetries: 2, InitialDelay: time.Millisecond},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, apiErr(503)
		})

	assert.Equal(t, 3, calls, "maxRetries=2 means 3 total attempts")
	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "CLOUDBEDS", ie.Vendor)
	assert.Equal(t, "getReservations", ie.Op)
	assert.Equal(t, 503, ie.LastStatus)
	assert.Len(t, ie.Attempts, 3)
	assert.Contains(t, ie.Error(), "failed after 3 attempt(s)")
}

func TestClientErrorsAreFatal(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "CLOUDBEDS", "getRooms",
		Policy{MaxRetries: 5, InitialDelay: time.Millisecond},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, apiErr(404)
		})

	assert.Equal(t, 1, calls, "4xx must not retry")
	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 404, ie.LastStatus)
	assert.Len(t, ie.Attempts, 1)
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	body, err := Do(context.Background(), "CLOUDBEDS", "getGuests",
		Policy{MaxRetries: 3, InitialDelay: time.Millisecond},
		func(ctx context.Context) ([]byte, error) {
			calls++
			if calls < 3 {
				return nil, apiErr(500)
			}
			return []byte(`{"ok":true}`), nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestNetworkErrorsRetry(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "MEWS", "query",
		Policy{MaxRetries: 1, InitialDelay: time.Millisecond},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, errors.New("connection refused")
		})

	assert.Equal(t, 2, calls)
	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.Zero(t, ie.LastStatus)
}

func TestTimeoutsRetryUnlessFatal(t *testing.T) {
	timeout := fmt.Errorf("GET /slow: %w", transport.ErrTimedOut)

	calls := 0
	_, err := Do(context.Background(), "CLOUDBEDS", "getReservations",
		Policy{MaxRetries: 2, InitialDelay: time.Millisecond},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, timeout
		})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = Do(context.Background(), "CLOUDBEDS", "getReservations",
		Policy{MaxRetries: 2, InitialDelay: time.Millisecond, FatalTimeouts: true},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, timeout
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffGrowsExponentially(t *testing.T) {
	var delays []time.Duration
	// Attempt history carries the delay slept before each attempt.
	_, err := Do(context.Background(), "CLOUDBEDS", "getReservations",
		Policy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, Multiplier: 2},
		func(ctx context.Context) ([]byte, error) {
			return nil, apiErr(500)
		})
	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	for _, a := range ie.Attempts {
		delays = append(delays, a.Delay)
	}
	assert.Equal(t, []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, "CLOUDBEDS", "getReservations",
		Policy{MaxRetries: 5, InitialDelay: 10 * time.Second},
		func(ctx context.Context) ([]byte, error) {
			calls++
			return nil, apiErr(500)
		})

	var ie *IntegrationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, ie.Err, context.Canceled)
	assert.Equal(t, 1, calls)
}
