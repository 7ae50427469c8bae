package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pmsgw/internal/metrics"
	"pmsgw/internal/model"
)

const channelPrefix = "pms.events:"

// Redis is a Bus over Redis Pub/Sub, for deployments where event consumers
// run in other processes. Same at-most-once semantics as Memory.
type Redis struct {
	rdb *redis.Client
	log *zap.Logger

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

func NewRedis(url string, log *zap.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: redis.NewClient(opt), log: log, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *Redis) Emit(ctx context.Context, evt model.Event) {
	stamp(&evt)
	metrics.BusEvents.WithLabelValues(string(evt.Topic)).Inc()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(pctx, channelPrefix+string(evt.Topic), data).Err(); err != nil {
		b.log.Warn("redis bus publish failed", zap.String("topic", string(evt.Topic)), zap.Error(err))
	}
}

func (b *Redis) Subscribe(topic model.Topic) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	var ps *redis.PubSub
	if topic == model.TopicAll {
		ps = b.rdb.PSubscribe(ctx, channelPrefix+"*")
	} else {
		ps = b.rdb.Subscribe(ctx, channelPrefix+string(topic))
	}
	// Consume the subscription confirmation before handing out the channel.
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Warn("redis bus: bad event payload", zap.Error(err))
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
		close(ch)
	}()
	return ch
}

func (b *Redis) Unsubscribe(topic model.Topic, ch chan model.Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		// Closing the PubSub ends the reader goroutine, which closes ch.
		_ = ps.Close()
	}
}

func (b *Redis) Close() error { return b.rdb.Close() }
