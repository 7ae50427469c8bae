package model

import "time"

// Topic is a canonical event topic on the internal bus.
type Topic string

const (
	TopicBookingCreated   Topic = "pms.booking.created"
	TopicBookingUpdated   Topic = "pms.booking.updated"
	TopicBookingCanceled  Topic = "pms.booking.canceled"
	TopicBookingCheckedIn Topic = "pms.booking.checkedin"
	TopicBookingCheckedOut Topic = "pms.booking.checkedout"
	TopicRoomUpdated      Topic = "pms.room.updated"

	// TopicAll subscribes to every topic on the bus.
	TopicAll Topic = "*"
)

// EventPayload carries the vendor-native change in a vendor-agnostic
// envelope. ExternalID is the vendor-assigned identifier downstream
// consumers key idempotent upserts on.
type EventPayload struct {
	Vendor     Vendor         `json:"vendor"`
	ExternalID string         `json:"externalId"`
	Action     string         `json:"action"`
	Data       map[string]any `json:"data,omitempty"`
}

// EventContext scopes an event to its owning tenant.
type EventContext struct {
	HotelID string `json:"hotelId"`
}

// Event is a normalized domain event published on the bus.
type Event struct {
	ID         string       `json:"id"`
	Topic      Topic        `json:"topic"`
	Payload    EventPayload `json:"payload"`
	Context    EventContext `json:"context"`
	OccurredAt time.Time    `json:"occurredAt"`
}
