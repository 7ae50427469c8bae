// Package pms defines the vendor-agnostic adapter contract and the
// vendor → factory registry used to build an adapter from a tenant's
// configuration.
package pms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pmsgw/internal/model"
)

var ErrUnsupportedVendor = errors.New("unsupported PMS vendor")

// Adapter is the common operation set every vendor client implements.
// Operations return the vendor-native JSON unmodified; normalization is the
// caller's concern.
type Adapter interface {
	Vendor() model.Vendor
	GetReservations(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error)
	GetRooms(ctx context.Context, propertyID string) (json.RawMessage, error)
	GetGuests(ctx context.Context, propertyID string, since *time.Time) (json.RawMessage, error)
}

// Config is the resolved, decrypted connection material for one tenant.
type Config struct {
	Vendor     model.Vendor
	APIKey     string
	Endpoint   string // optional base URL override
	APIVersion string
}

// Factory builds a vendor adapter from a resolved config.
type Factory func(cfg Config, log *zap.Logger) (Adapter, error)

// Registry maps vendor types to adapter factories. Registration happens at
// startup; lookups are read-only after that.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.Vendor]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[model.Vendor]Factory{}}
}

func (r *Registry) Register(v model.Vendor, f Factory) {
	r.mu.Lock()
	r.factories[v] = f
	r.mu.Unlock()
}

// New builds an adapter for the config's vendor.
func (r *Registry) New(cfg Config, log *zap.Logger) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Vendor]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVendor, cfg.Vendor)
	}
	return f(cfg, log)
}

// Vendors lists the registered vendor types.
func (r *Registry) Vendors() []model.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Vendor, 0, len(r.factories))
	for v := range r.factories {
		out = append(out, v)
	}
	return out
}
