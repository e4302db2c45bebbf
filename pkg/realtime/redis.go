package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// PubSubClient is the slice of pkg/redis the hub needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (*goredis.PubSub, error)
}

// RedisHub relays events through Redis so every API instance sees them.
type RedisHub struct {
	client PubSubClient
	logg   *logger.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

func NewRedisHub(client PubSubClient, logg *logger.Logger, buffer int) (*RedisHub, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &RedisHub{client: client, logg: logg, buffer: buffer, subs: map[*redisSubscription]struct{}{}}, nil
}

func (h *RedisHub) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	if err := h.client.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrHubClosed
	}

	ps, err := h.client.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	sub := &redisSubscription{hub: h, ps: ps, ch: make(chan Event, h.buffer), done: make(chan struct{})}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump(ctx)
	return sub, nil
}

// Close ends every subscription and reports all close errors together.
func (h *RedisHub) Close() error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*redisSubscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	var errs error
	for _, sub := range subs {
		errs = multierr.Append(errs, sub.Close())
	}
	return errs
}

type redisSubscription struct {
	hub  *RedisHub
	ps   *goredis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
	})
	return s.err
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.ch)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if s.hub.logg != nil {
					s.hub.logg.Warn(ctx, fmt.Sprintf("dropping malformed realtime payload on %s", msg.Channel))
				}
				continue
			}
			select {
			case s.ch <- event:
			default:
			}
		}
	}
}
