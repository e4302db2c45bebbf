package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type stubPubSub struct {
	channel string
	payload []byte
	err     error
}

func (s *stubPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	s.channel = channel
	s.payload = payload
	return s.err
}

func (s *stubPubSub) Subscribe(context.Context, string) (*goredis.PubSub, error) {
	return nil, errors.New("not supported in tests")
}

func TestRedisHubPublishEncodesEvent(t *testing.T) {
	stub := &stubPubSub{}
	hub, err := NewRedisHub(stub, nil, 0)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	id := uuid.New()
	if err := hub.Publish(context.Background(), "orders:owner:x", NewEvent(OperationDelete, "orders", id)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if stub.channel != "orders:owner:x" {
		t.Fatalf("unexpected channel %s", stub.channel)
	}
	var ev Event
	if err := json.Unmarshal(stub.payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Type != OperationDelete || ev.RecordID != id.String() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRedisHubPublishWrapsErrors(t *testing.T) {
	hub, _ := NewRedisHub(&stubPubSub{err: errors.New("down")}, nil, 0)
	if err := hub.Publish(context.Background(), "c", Event{}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestRedisHubSubscribeError(t *testing.T) {
	hub, _ := NewRedisHub(&stubPubSub{}, nil, 0)
	if _, err := hub.Subscribe(context.Background(), "c"); err == nil {
		t.Fatal("expected subscribe error")
	}
	if err := hub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := hub.Subscribe(context.Background(), "c"); err != ErrHubClosed {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}

func TestNewRedisHubRequiresClient(t *testing.T) {
	if _, err := NewRedisHub(nil, nil, 0); err == nil {
		t.Fatal("expected error")
	}
}
