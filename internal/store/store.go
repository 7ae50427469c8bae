// Package store persists per-tenant PMS configurations and the webhook
// dead-letter buffer. The sealed API credential is write-mostly: reads of a
// configuration never include it, and CredentialFor is the only way out.
package store

import (
	"context"
	"errors"
	"time"

	"pmsgw/internal/model"
)

var ErrNotFound = errors.New("not found")

// SaveConfigurationInput is the upsert payload for a tenant's PMS
// connection. The credential arrives already sealed.
type SaveConfigurationInput struct {
	TenantID         string
	Vendor           model.Vendor
	SealedCredential string
	PropertyID       string
	APIVersion       string
	Endpoint         string
}

// DeadLetter is an authenticated webhook event that could not be processed
// (no CONNECTED configuration for its vendor) and is kept for replay.
type DeadLetter struct {
	ID         string    `json:"id"`
	Vendor     model.Vendor `json:"vendor"`
	EventType  string    `json:"eventType"`
	Payload    []byte    `json:"payload"`
	Reason     string    `json:"reason"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Store is the persistence interface used by the gateway.
type Store interface {
	// SaveConfiguration upserts: create if absent, otherwise replace the
	// credential and reset status to CONNECTED with a cleared last error.
	SaveConfiguration(ctx context.Context, in SaveConfigurationInput) (model.PMSConfiguration, error)
	GetConfiguration(ctx context.Context, tenantID string) (model.PMSConfiguration, error)
	// ConnectedConfiguration resolves the tenant owning inbound events for
	// a vendor: the configuration with that vendor type and CONNECTED
	// status.
	ConnectedConfiguration(ctx context.Context, vendor model.Vendor) (model.PMSConfiguration, error)
	ListConnected(ctx context.Context) ([]model.PMSConfiguration, error)
	// CredentialFor returns the sealed credential for sync jobs to open.
	CredentialFor(ctx context.Context, tenantID string) (string, error)
	// Disconnect clears the credential and sets status DISCONNECTED.
	Disconnect(ctx context.Context, tenantID string) error
	SetSyncStatus(ctx context.Context, tenantID string, status model.ConnectionStatus, syncedAt time.Time, lastError string) error

	AddDeadLetter(ctx context.Context, dl DeadLetter) (string, error)
	ListDeadLetters(ctx context.Context, vendor string, limit int) ([]DeadLetter, error)
	// TakeDeadLetter removes and returns one dead letter for replay.
	TakeDeadLetter(ctx context.Context, id string) (DeadLetter, error)
}
