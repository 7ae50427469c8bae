package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmsgw/internal/model"
)

// deadLetterCap bounds the in-memory replay buffer; oldest entries are
// dropped first.
const deadLetterCap = 1000

// Memory is the in-memory store used when no DATABASE_URL is set, and by
// tests.
type Memory struct {
	mu      sync.Mutex
	configs map[string]model.PMSConfiguration // tenantID -> config
	creds   map[string]string                 // tenantID -> sealed credential
	dlq     []DeadLetter
}

func NewMemory() *Memory {
	return &Memory{
		configs: map[string]model.PMSConfiguration{},
		creds:   map[string]string{},
	}
}

func (m *Memory) SaveConfiguration(ctx context.Context, in SaveConfigurationInput) (model.PMSConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := model.PMSConfiguration{
		TenantID:   in.TenantID,
		Vendor:     in.Vendor,
		PropertyID: in.PropertyID,
		APIVersion: in.APIVersion,
		Endpoint:   in.Endpoint,
		Status:     model.StatusConnected,
		UpdatedAt:  time.Now().UTC(),
	}
	if prev, ok := m.configs[in.TenantID]; ok {
		cfg.LastSyncAt = prev.LastSyncAt
	}
	m.configs[in.TenantID] = cfg
	m.creds[in.TenantID] = in.SealedCredential
	return cfg, nil
}

func (m *Memory) GetConfiguration(ctx context.Context, tenantID string) (model.PMSConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[tenantID]
	if !ok {
		return model.PMSConfiguration{}, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) ConnectedConfiguration(ctx context.Context, vendor model.Vendor) (model.PMSConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range m.configs {
		if cfg.Vendor == vendor && cfg.Status == model.StatusConnected {
			return cfg, nil
		}
	}
	return model.PMSConfiguration{}, ErrNotFound
}

func (m *Memory) ListConnected(ctx context.Context) ([]model.PMSConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PMSConfiguration{}
	for _, cfg := range m.configs {
		if cfg.Status == model.StatusConnected {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *Memory) CredentialFor(ctx context.Context, tenantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[tenantID]
	if !ok || cred == "" {
		return "", ErrNotFound
	}
	return cred, nil
}

func (m *Memory) Disconnect(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[tenantID]
	if !ok {
		return ErrNotFound
	}
	delete(m.creds, tenantID)
	cfg.Status = model.StatusDisconnected
	cfg.LastError = ""
	cfg.UpdatedAt = time.Now().UTC()
	m.configs[tenantID] = cfg
	return nil
}

func (m *Memory) SetSyncStatus(ctx context.Context, tenantID string, status model.ConnectionStatus, syncedAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[tenantID]
	if !ok {
		return ErrNotFound
	}
	cfg.Status = status
	cfg.LastError = lastError
	if !syncedAt.IsZero() {
		at := syncedAt.UTC()
		cfg.LastSyncAt = &at
	}
	cfg.UpdatedAt = time.Now().UTC()
	m.configs[tenantID] = cfg
	return nil
}

func (m *Memory) AddDeadLetter(ctx context.Context, dl DeadLetter) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.ReceivedAt.IsZero() {
		dl.ReceivedAt = time.Now().UTC()
	}
	m.dlq = append(m.dlq, dl)
	if len(m.dlq) > deadLetterCap {
		m.dlq = m.dlq[len(m.dlq)-deadLetterCap:]
	}
	return dl.ID, nil
}

func (m *Memory) ListDeadLetters(ctx context.Context, vendor string, limit int) ([]DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []DeadLetter{}
	for i := len(m.dlq) - 1; i >= 0 && len(out) < limit; i-- {
		if vendor == "" || string(m.dlq[i].Vendor) == vendor {
			out = append(out, m.dlq[i])
		}
	}
	return out, nil
}

func (m *Memory) TakeDeadLetter(ctx context.Context, id string) (DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, dl := range m.dlq {
		if dl.ID == id {
			m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
			return dl, nil
		}
	}
	return DeadLetter{}, ErrNotFound
}
