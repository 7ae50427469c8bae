// Package syncer runs scheduled per-tenant PMS pulls: it resolves each
// CONNECTED tenant's adapter, fetches reservations/rooms/guests, and
// republishes normalized refresh events. Persistence of the fetched
// records is a downstream consumer's job.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pmsgw/internal/bus"
	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
	"pmsgw/internal/pms"
	"pmsgw/internal/secrets"
	"pmsgw/internal/store"
)

const defaultConcurrency = 4

// Syncer drives the periodic sync loop.
type Syncer struct {
	store       store.Store
	bus         bus.Bus
	registry    *pms.Registry
	box         *secrets.Box
	log         *zap.Logger
	interval    time.Duration
	concurrency int
	stop        chan struct{}
}

func New(st store.Store, b bus.Bus, reg *pms.Registry, box *secrets.Box, interval time.Duration, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		store:       st,
		bus:         b,
		registry:    reg,
		box:         box,
		log:         log,
		interval:    interval,
		concurrency: defaultConcurrency,
		stop:        make(chan struct{}),
	}
}

// Start runs the sync loop until Stop.
func (s *Syncer) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.RunOnce(context.Background()); err != nil {
					s.log.Warn("sync pass finished with errors", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Syncer) Stop() { close(s.stop) }

// RunOnce syncs every CONNECTED tenant, a bounded number at a time. Tenant
// failures are recorded per tenant and do not stop the pass; the first
// error is returned for the caller's log line.
func (s *Syncer) RunOnce(ctx context.Context) error {
	configs, err := s.store.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("list connected tenants: %w", err)
	}
	// Tenants are independent: one failure must not cancel the others, so
	// no errgroup.WithContext here.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, cfg := range configs {
		cfg := cfg
		g.Go(func() error {
			if err := s.SyncTenant(ctx, cfg); err != nil {
				s.log.Warn("tenant sync failed",
					zap.String("tenant_id", cfg.TenantID),
					zap.String("vendor", string(cfg.Vendor)),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncTenant pulls one tenant's data and updates its sync status.
func (s *Syncer) SyncTenant(ctx context.Context, cfg model.PMSConfiguration) error {
	err := s.syncTenant(ctx, cfg)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(string(cfg.Vendor), "error").Inc()
		if serr := s.store.SetSyncStatus(ctx, cfg.TenantID, model.StatusError, time.Time{}, err.Error()); serr != nil {
			s.log.Error("sync status write failed", zap.String("tenant_id", cfg.TenantID), zap.Error(serr))
		}
		return err
	}
	metrics.SyncRuns.WithLabelValues(string(cfg.Vendor), "ok").Inc()
	return s.store.SetSyncStatus(ctx, cfg.TenantID, model.StatusConnected, time.Now().UTC(), "")
}

func (s *Syncer) syncTenant(ctx context.Context, cfg model.PMSConfiguration) error {
	sealed, err := s.store.CredentialFor(ctx, cfg.TenantID)
	if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}
	apiKey, err := s.box.Open(sealed)
	if err != nil {
		return fmt.Errorf("credential unseal: %w", err)
	}
	adapter, err := s.registry.New(pms.Config{
		Vendor:     cfg.Vendor,
		APIKey:     apiKey,
		Endpoint:   cfg.Endpoint,
		APIVersion: cfg.APIVersion,
	}, s.log)
	if err != nil {
		return err
	}

	since := cfg.LastSyncAt

	reservations, err := adapter.GetReservations(ctx, cfg.PropertyID, since)
	if err != nil {
		return err
	}
	nRes := s.emitRecords(ctx, cfg, model.TopicBookingUpdated, records(reservations, "reservations"),
		"reservationID", "confirmationNumber", "id")

	rooms, err := adapter.GetRooms(ctx, cfg.PropertyID)
	if err != nil {
		return err
	}
	nRooms := s.emitRecords(ctx, cfg, model.TopicRoomUpdated, records(rooms, "rooms"),
		"roomID", "number", "id")

	// Guests have no topic of their own; fetched for downstream persistence
	// consumers reading the sync log.
	guests, err := adapter.GetGuests(ctx, cfg.PropertyID, since)
	if err != nil {
		return err
	}

	s.log.Info("tenant sync complete",
		zap.String("tenant_id", cfg.TenantID),
		zap.String("vendor", string(cfg.Vendor)),
		zap.Int("reservations", nRes),
		zap.Int("rooms", nRooms),
		zap.Int("guests", len(records(guests, "guests"))))
	return nil
}

func (s *Syncer) emitRecords(ctx context.Context, cfg model.PMSConfiguration, topic model.Topic, recs []map[string]any, idFields ...string) int {
	emitted := 0
	for _, rec := range recs {
		externalID := firstString(rec, idFields...)
		if externalID == "" {
			continue
		}
		s.bus.Emit(ctx, model.Event{
			Topic: topic,
			Payload: model.EventPayload{
				Vendor:     cfg.Vendor,
				ExternalID: externalID,
				Action:     "updated",
				Data:       rec,
			},
			Context: model.EventContext{HotelID: cfg.TenantID},
		})
		emitted++
	}
	return emitted
}

// records extracts a list of objects from a vendor-native response: a bare
// array, a {"data": [...]} envelope, or a {"<key>": [...]} envelope.
func records(raw json.RawMessage, keys ...string) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	for _, k := range append([]string{"data"}, keys...) {
		if v, ok := obj[k]; ok {
			if err := json.Unmarshal(v, &arr); err == nil {
				return arr
			}
		}
	}
	return nil
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
