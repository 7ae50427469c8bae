// Package webhooks receives asynchronous vendor callbacks, authenticates
// them, maps vendor event names onto the canonical topic vocabulary, and
// publishes normalized events on the bus. Once a request authenticates the
// vendor always gets a success response; processing failures are logged and
// dead-lettered, never surfaced, so a vendor cannot be tricked into a retry
// storm by our own bugs.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"pmsgw/internal/bus"
	"pmsgw/internal/config"
	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
	"pmsgw/internal/store"
)

const maxBodyBytes = 1 << 20

// Outcome is the terminal state of processing one authenticated event.
type Outcome string

const (
	OutcomePublished    Outcome = "published"
	OutcomeNoTenant     Outcome = "no_tenant"
	OutcomeUnknownEvent Outcome = "unknown_event"
	OutcomeMalformed    Outcome = "malformed"
)

// mapping binds one vendor event name to a canonical topic. idField names
// the vendor payload field carrying the external identifier.
type mapping struct {
	topic   model.Topic
	action  string
	idField string
}

var cloudbedsEvents = map[string]mapping{
	"reservation_created":     {model.TopicBookingCreated, "created", "reservationID"},
	"reservation_updated":     {model.TopicBookingUpdated, "updated", "reservationID"},
	"reservation_canceled":    {model.TopicBookingCanceled, "canceled", "reservationID"},
	"reservation_checked_in":  {model.TopicBookingCheckedIn, "checkedin", "reservationID"},
	"reservation_checked_out": {model.TopicBookingCheckedOut, "checkedout", "reservationID"},
	"room_updated":            {model.TopicRoomUpdated, "updated", "roomID"},
}

var operaEvents = map[string]mapping{
	"RESERVATION_CREATED":   {model.TopicBookingCreated, "created", "confirmationNumber"},
	"RESERVATION_UPDATED":   {model.TopicBookingUpdated, "updated", "confirmationNumber"},
	"RESERVATION_CANCELLED": {model.TopicBookingCanceled, "canceled", "confirmationNumber"},
	"GUEST_CHECKED_IN":      {model.TopicBookingCheckedIn, "checkedin", "confirmationNumber"},
	"GUEST_CHECKED_OUT":     {model.TopicBookingCheckedOut, "checkedout", "confirmationNumber"},
	"ROOM_STATUS_CHANGED":   {model.TopicRoomUpdated, "updated", "roomNumber"},
}

// Receiver hosts the per-vendor webhook endpoints.
type Receiver struct {
	store   store.Store
	bus     bus.Bus
	secrets config.WebhookSecrets
	log     *zap.Logger
}

func NewReceiver(st store.Store, b bus.Bus, secrets config.WebhookSecrets, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{store: st, bus: b, secrets: secrets, log: log}
}

// CloudbedsHandler authenticates via shared token, from the `token` query
// parameter or the X-Cloudbeds-Token header.
func (rcv *Receiver) CloudbedsHandler(w http.ResponseWriter, r *http.Request) {
	secret := rcv.secrets.CloudbedsToken
	if secret == "" {
		rcv.misconfigured(w, model.VendorCloudbeds)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("X-Cloudbeds-Token")
	}
	if !TokenEquals(secret, token) {
		rcv.reject(w, model.VendorCloudbeds, "invalid token")
		return
	}
	body, err := readBody(r)
	if err != nil {
		rcv.reject(w, model.VendorCloudbeds, "unreadable body")
		return
	}
	rcv.accept(r.Context(), w, model.VendorCloudbeds, body)
}

// OperaHandler authenticates via HMAC-SHA256 over the raw body, supplied in
// the X-Opera-Signature header as "sha256=<hex>".
func (rcv *Receiver) OperaHandler(w http.ResponseWriter, r *http.Request) {
	secret := rcv.secrets.OperaSecret
	if secret == "" {
		rcv.misconfigured(w, model.VendorOpera)
		return
	}
	body, err := readBody(r)
	if err != nil {
		rcv.reject(w, model.VendorOpera, "unreadable body")
		return
	}
	if !VerifyHMAC(secret, body, r.Header.Get("X-Opera-Signature")) {
		rcv.reject(w, model.VendorOpera, "invalid signature")
		return
	}
	rcv.accept(r.Context(), w, model.VendorOpera, body)
}

// accept runs post-auth processing and always answers success.
func (rcv *Receiver) accept(ctx context.Context, w http.ResponseWriter, vendor model.Vendor, body []byte) {
	outcome := rcv.Process(ctx, vendor, body)
	metrics.WebhookEvents.WithLabelValues(string(vendor), string(outcome)).Inc()
	if outcome == OutcomeNoTenant {
		rcv.deadLetter(ctx, vendor, body)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Process normalizes and publishes one authenticated vendor event. It
// never fails the request: every path maps to an Outcome.
func (rcv *Receiver) Process(ctx context.Context, vendor model.Vendor, body []byte) Outcome {
	eventType, data, err := decode(vendor, body)
	if err != nil {
		rcv.log.Warn("webhook payload malformed",
			zap.String("vendor", string(vendor)), zap.Error(err))
		return OutcomeMalformed
	}

	cfg, err := rcv.store.ConnectedConfiguration(ctx, vendor)
	if err != nil {
		// No CONNECTED tenant for this vendor. The vendor still gets a
		// success response so it does not retry forever; the event goes to
		// the dead-letter buffer for replay once configuration returns.
		rcv.log.Warn("webhook event has no connected tenant",
			zap.String("vendor", string(vendor)), zap.String("event_type", eventType))
		return OutcomeNoTenant
	}

	m, ok := eventTable(vendor)[eventType]
	if !ok {
		rcv.log.Info("webhook event type not in taxonomy, dropping",
			zap.String("vendor", string(vendor)), zap.String("event_type", eventType))
		return OutcomeUnknownEvent
	}

	externalID, _ := data[m.idField].(string)
	if externalID == "" {
		rcv.log.Warn("webhook event missing external id, dropping",
			zap.String("vendor", string(vendor)),
			zap.String("event_type", eventType),
			zap.String("id_field", m.idField))
		return OutcomeMalformed
	}

	rcv.bus.Emit(ctx, model.Event{
		Topic: m.topic,
		Payload: model.EventPayload{
			Vendor:     vendor,
			ExternalID: externalID,
			Action:     m.action,
			Data:       data,
		},
		Context: model.EventContext{HotelID: cfg.TenantID},
	})
	rcv.log.Debug("webhook event published",
		zap.String("vendor", string(vendor)),
		zap.String("topic", string(m.topic)),
		zap.String("external_id", externalID),
		zap.String("hotel_id", cfg.TenantID))
	return OutcomePublished
}

func (rcv *Receiver) deadLetter(ctx context.Context, vendor model.Vendor, body []byte) {
	eventType, _, _ := decode(vendor, body)
	if _, err := rcv.store.AddDeadLetter(ctx, store.DeadLetter{
		Vendor:    vendor,
		EventType: eventType,
		Payload:   body,
		Reason:    "no connected configuration",
	}); err != nil {
		rcv.log.Error("dead-letter write failed", zap.String("vendor", string(vendor)), zap.Error(err))
		return
	}
	metrics.DeadLetters.WithLabelValues(string(vendor), "no_tenant").Inc()
}

func (rcv *Receiver) reject(w http.ResponseWriter, vendor model.Vendor, reason string) {
	metrics.WebhookEvents.WithLabelValues(string(vendor), "rejected").Inc()
	rcv.log.Warn("webhook rejected", zap.String("vendor", string(vendor)), zap.String("reason", reason))
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": reason})
}

func (rcv *Receiver) misconfigured(w http.ResponseWriter, vendor model.Vendor) {
	metrics.WebhookEvents.WithLabelValues(string(vendor), "misconfigured").Inc()
	rcv.log.Error("webhook secret not configured, failing closed",
		zap.String("vendor", string(vendor)))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "webhook secret not configured"})
}

func decode(vendor model.Vendor, body []byte) (eventType string, data map[string]any, err error) {
	switch vendor {
	case model.VendorCloudbeds:
		var p struct {
			Type       string         `json:"type"`
			PropertyID string         `json:"property_id"`
			Data       map[string]any `json:"data"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return "", nil, err
		}
		if p.Data == nil {
			p.Data = map[string]any{}
		}
		if p.PropertyID != "" {
			p.Data["propertyID"] = p.PropertyID
		}
		return p.Type, p.Data, nil
	case model.VendorOpera:
		var p struct {
			EventType string         `json:"eventType"`
			HotelCode string         `json:"hotelCode"`
			Data      map[string]any `json:"data"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return "", nil, err
		}
		if p.Data == nil {
			p.Data = map[string]any{}
		}
		if p.HotelCode != "" {
			p.Data["hotelCode"] = p.HotelCode
		}
		return p.EventType, p.Data, nil
	}
	return "", nil, fmt.Errorf("no webhook decoder for vendor %s", vendor)
}

func eventTable(vendor model.Vendor) map[string]mapping {
	switch vendor {
	case model.VendorCloudbeds:
		return cloudbedsEvents
	case model.VendorOpera:
		return operaEvents
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
