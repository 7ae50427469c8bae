package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmsgw/internal/model"
)

func testEvent(topic model.Topic) model.Event {
	return model.Event{
		Topic: topic,
		Payload: model.EventPayload{
			Vendor:     model.VendorCloudbeds,
			ExternalID: "R123",
			Action:     "created",
		},
		Context: model.EventContext{HotelID: "H1"},
	}
}

func receive(t *testing.T, ch chan model.Event) model.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return model.Event{}
	}
}

func TestMemoryEmitSubscribe(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(model.TopicBookingCreated)

	b.Emit(context.Background(), testEvent(model.TopicBookingCreated))

	got := receive(t, ch)
	assert.Equal(t, model.TopicBookingCreated, got.Topic)
	assert.Equal(t, "R123", got.Payload.ExternalID)
	assert.Equal(t, "H1", got.Context.HotelID)
	assert.NotEmpty(t, got.ID, "emit stamps an event id")
	assert.False(t, got.OccurredAt.IsZero())
}

func TestMemoryTopicIsolation(t *testing.T) {
	b := NewMemory()
	bookings := b.Subscribe(model.TopicBookingCreated)
	rooms := b.Subscribe(model.TopicRoomUpdated)

	b.Emit(context.Background(), testEvent(model.TopicRoomUpdated))

	got := receive(t, rooms)
	assert.Equal(t, model.TopicRoomUpdated, got.Topic)
	select {
	case evt := <-bookings:
		t.Fatalf("booking subscriber received %v", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryWildcardSubscriber(t *testing.T) {
	b := NewMemory()
	all := b.Subscribe(model.TopicAll)

	b.Emit(context.Background(), testEvent(model.TopicBookingCanceled))
	b.Emit(context.Background(), testEvent(model.TopicRoomUpdated))

	assert.Equal(t, model.TopicBookingCanceled, receive(t, all).Topic)
	assert.Equal(t, model.TopicRoomUpdated, receive(t, all).Topic)
}

func TestMemoryUnsubscribeClosesChannel(t *testing.T) {
	b := NewMemory()
	ch := b.Subscribe(model.TopicBookingUpdated)
	b.Unsubscribe(model.TopicBookingUpdated, ch)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")

	// Emitting after unsubscribe must not panic.
	b.Emit(context.Background(), testEvent(model.TopicBookingUpdated))
}

func TestMemorySlowSubscriberDoesNotBlockEmit(t *testing.T) {
	b := NewMemory()
	_ = b.Subscribe(model.TopicBookingCreated) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Emit(context.Background(), testEvent(model.TopicBookingCreated))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber channel")
	}
}
