// Package cloudbeds is the REST adapter for the Cloudbeds PMS API.
package cloudbeds

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
	"pmsgw/internal/pms"
	"pmsgw/internal/retry"
	"pmsgw/internal/transport"
)

const defaultBaseURL = "https://hotels.cloudbeds.com/api/v1.1"

// Cloudbeds allows ~5 req/s per property; stay under it.
const requestsPerSecond = 5

var defaultPolicy = retry.Policy{MaxRetries: 2, InitialDelay: 500 * time.Millisecond}

// Client implements pms.Adapter over the Cloudbeds REST API. Read
// operations run under the retry policy; mutations issue exactly one
// attempt because Cloudbeds offers no idempotency key for them.
type Client struct {
	http    *transport.Client
	policy  retry.Policy
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Client from resolved tenant config.
func New(cfg pms.Config, log *zap.Logger) (pms.Adapter, error) {
	return NewClient(cfg, log), nil
}

func NewClient(cfg pms.Config, log *zap.Logger) *Client {
	base := cfg.Endpoint
	if base == "" {
		base = defaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &Client{
		http:    transport.New(base, headers, transport.DefaultTimeout, log),
		policy:  defaultPolicy,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond*2),
		log:     log.With(zap.String("vendor", string(model.VendorCloudbeds))),
	}
}

func (c *Client) Vendor() model.Vendor { return model.VendorCloudbeds }

func (c *Client) GetReservations(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	q := url.Values{"propertyID": {propertyID}}
	if since != nil {
		q.Set("modifiedSince", since.UTC().Format(time.RFC3339))
	}
	return c.read(ctx, "getReservations", "/getReservations", q)
}

func (c *Client) GetRooms(ctx context.Context, propertyID string) (json.RawMessage, error) {
	return c.read(ctx, "getRooms", "/getRooms", url.Values{"propertyID": {propertyID}})
}

func (c *Client) GetGuests(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	q := url.Values{"propertyID": {propertyID}}
	if since != nil {
		q.Set("modifiedSince", since.UTC().Format(time.RFC3339))
	}
	return c.read(ctx, "getGuests", "/getGuests", q)
}

// CreateReservation posts a new reservation. Single attempt: a retried
// create could double-book on the vendor side.
func (c *Client) CreateReservation(ctx context.Context, propertyID string, reservation map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{"propertyID": propertyID}
	for k, v := range reservation {
		body[k] = v
	}
	return c.write(ctx, "postReservation", func(ctx context.Context) ([]byte, error) {
		return c.http.Post(ctx, "/postReservation", body, transport.Options{})
	})
}

// UpdateReservation applies field changes to an existing reservation.
// Single attempt, same reasoning as CreateReservation.
func (c *Client) UpdateReservation(ctx context.Context, reservationID string, fields map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{"reservationID": reservationID}
	for k, v := range fields {
		body[k] = v
	}
	return c.write(ctx, "putReservation", func(ctx context.Context) ([]byte, error) {
		return c.http.Put(ctx, "/putReservation", body, transport.Options{})
	})
}

func (c *Client) read(ctx context.Context, op, path string, q url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := retry.Do(ctx, string(model.VendorCloudbeds), op, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.http.Get(ctx, path, transport.Options{Query: q})
	})
	c.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) write(ctx context.Context, op string, fn func(ctx context.Context) ([]byte, error)) (json.RawMessage, error) {
	start := time.Now()
	body, err := fn(ctx)
	c.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) record(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.log.Warn("cloudbeds call failed", zap.String("op", op), zap.Error(err))
	}
	metrics.AdapterCalls.WithLabelValues(string(model.VendorCloudbeds), op, outcome).Inc()
	metrics.AdapterLatency.WithLabelValues(string(model.VendorCloudbeds), op).Observe(time.Since(start).Seconds())
}
