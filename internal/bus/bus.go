// Package bus carries normalized PMS domain events from webhook receivers
// and sync jobs to in-process consumers. Delivery is at-most-once; durable
// delivery is a downstream concern.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
)

// Bus is the publish/subscribe contract. Emit is fire-and-forget from the
// publisher's perspective. Subscribing with model.TopicAll receives every
// topic.
type Bus interface {
	Emit(ctx context.Context, evt model.Event)
	Subscribe(topic model.Topic) chan model.Event
	Unsubscribe(topic model.Topic, ch chan model.Event)
}

// Memory is the in-process bus: channel fan-out per topic with
// non-blocking sends, so a slow subscriber drops rather than stalls the
// publisher.
type Memory struct {
	mu   sync.Mutex
	subs map[model.Topic]map[chan model.Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[model.Topic]map[chan model.Event]struct{}{}}
}

func (b *Memory) Subscribe(topic model.Topic) chan model.Event {
	ch := make(chan model.Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan model.Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic model.Topic, ch chan model.Event) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

func (b *Memory) Emit(ctx context.Context, evt model.Event) {
	stamp(&evt)
	metrics.BusEvents.WithLabelValues(string(evt.Topic)).Inc()
	b.mu.Lock()
	for ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	for ch := range b.subs[model.TopicAll] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

func stamp(evt *model.Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
}
