// Package mews is the GraphQL adapter for the Mews PMS API.
package mews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
	"pmsgw/internal/pms"
	"pmsgw/internal/transport"
)

const defaultEndpoint = "https://api.mews.com/graphql"

const requestsPerSecond = 10

const reservationsQuery = `query Reservations($propertyId: ID!, $modifiedSince: DateTime) {
  reservations(propertyId: $propertyId, modifiedSince: $modifiedSince) {
    id confirmationNumber state start end guestId roomId
  }
}`

const roomsQuery = `query Rooms($propertyId: ID!) {
  rooms(propertyId: $propertyId) { id number state floor }
}`

const guestsQuery = `query Guests($propertyId: ID!, $modifiedSince: DateTime) {
  guests(propertyId: $propertyId, modifiedSince: $modifiedSince) { id name email }
}`

// QueryOptions are per-call overrides for Query.
type QueryOptions struct {
	Variables map[string]any
	Timeout   time.Duration
}

// Client issues query/mutate operations against a single Mews GraphQL
// endpoint. GraphQL mutations are frequently non-idempotent, so no
// operation here auto-retries; that is the caller's decision.
type Client struct {
	http    *transport.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Client from resolved tenant config.
func New(cfg pms.Config, log *zap.Logger) (pms.Adapter, error) {
	return NewClient(cfg, log), nil
}

func NewClient(cfg pms.Config, log *zap.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if log == nil {
		log = zap.NewNop()
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &Client{
		http:    transport.New(endpoint, headers, transport.DefaultTimeout, log),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond*2),
		log:     log.With(zap.String("vendor", string(model.VendorMews))),
	}
}

func (c *Client) Vendor() model.Vendor { return model.VendorMews }

// Query runs a GraphQL query and returns the top-level data payload.
func (c *Client) Query(ctx context.Context, query string, opts QueryOptions) (json.RawMessage, error) {
	return c.execute(ctx, "query", query, opts.Variables, opts.Timeout)
}

// Mutate runs a GraphQL mutation. Exactly one attempt.
func (c *Client) Mutate(ctx context.Context, mutation string, variables map[string]any) (json.RawMessage, error) {
	return c.execute(ctx, "mutate", mutation, variables, 0)
}

func (c *Client) execute(ctx context.Context, op, query string, variables map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := c.post(ctx, query, variables, timeout)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.log.Warn("mews call failed", zap.String("op", op), zap.Error(err))
	}
	metrics.AdapterCalls.WithLabelValues(string(model.VendorMews), op, outcome).Inc()
	metrics.AdapterLatency.WithLabelValues(string(model.VendorMews), op).Observe(time.Since(start).Seconds())
	return data, err
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any, timeout time.Duration) (json.RawMessage, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := c.http.Post(ctx, "", payload, transport.Options{Timeout: timeout})
	if err != nil {
		if transport.IsTimeout(err) {
			return nil, fmt.Errorf("GraphQL request timed out: %w", err)
		}
		return nil, err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode GraphQL response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", envelope.Errors[0].Message)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, errors.New("GraphQL response missing data")
	}
	return envelope.Data, nil
}

// pms.Adapter operations, expressed as GraphQL queries.

func (c *Client) GetReservations(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	return c.Query(ctx, reservationsQuery, QueryOptions{Variables: sinceVariables(propertyID, since)})
}

func (c *Client) GetRooms(ctx context.Context, propertyID string) (json.RawMessage, error) {
	return c.Query(ctx, roomsQuery, QueryOptions{Variables: map[string]any{"propertyId": propertyID}})
}

func (c *Client) GetGuests(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error) {
	return c.Query(ctx, guestsQuery, QueryOptions{Variables: sinceVariables(propertyID, since)})
}

func sinceVariables(propertyID string, since *time.Time) map[string]any {
	vars := map[string]any{"propertyId": propertyID}
	if since != nil {
		vars["modifiedSince"] = since.UTC().Format(time.RFC3339)
	}
	return vars
}
