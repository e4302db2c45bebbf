package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrHubClosed is returned by operations on a closed hub.
var ErrHubClosed = errors.New("realtime hub closed")

const defaultBuffer = 32

// MemoryHub is a single-process Hub. A subscriber whose buffer is full misses
// the event rather than blocking the publisher.
type MemoryHub struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryHub builds a hub with per-subscriber buffers of the given size.
func NewMemoryHub(buffer int) *MemoryHub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MemoryHub{subs: map[string]map[*memorySubscription]struct{}{}, buffer: buffer}
}

func (h *MemoryHub) Publish(ctx context.Context, channel string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	for sub := range h.subs[channel] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	sub := &memorySubscription{hub: h, channel: channel, ch: make(chan Event, h.buffer)}
	if h.subs[channel] == nil {
		h.subs[channel] = map[*memorySubscription]struct{}{}
	}
	h.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Close ends every open subscription.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for channel, subs := range h.subs {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(h.subs, channel)
	}
	return nil
}

func (h *MemoryHub) subscriberCount(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

type memorySubscription struct {
	hub     *MemoryHub
	channel string
	ch      chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.ch }

func (s *memorySubscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs, ok := s.hub.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.channel)
		}
	}
	s.closeLocked()
	return nil
}

// closeLocked requires hub.mu.
func (s *memorySubscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}
