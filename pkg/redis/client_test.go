package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetGetDelRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.CartKey("session-1", "cart_r1")
	if err := client.Set(ctx, key, `[{"id":"a"}]`, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `[{"id":"a"}]` {
		t.Fatalf("unexpected stored value %q", value)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDeleteIfEqualsLeavesOtherHolders(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["ts:lock:cron"] = "worker-b"

	removed, err := client.DeleteIfEquals(ctx, "ts:lock:cron", "worker-a")
	if err != nil || removed {
		t.Fatalf("expected no delete for a foreign token, removed=%v err=%v", removed, err)
	}
	removed, err = client.DeleteIfEquals(ctx, "ts:lock:cron", "worker-b")
	if err != nil || !removed {
		t.Fatalf("expected holder delete, removed=%v err=%v", removed, err)
	}
	if _, ok := mock.data["ts:lock:cron"]; ok {
		t.Fatal("key still present after holder delete")
	}
}

func TestPublishUsesNamespacedChannel(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Publish(context.Background(), "orders:owner:o1", []byte(`{"type":"UPDATE"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(mock.published) != 1 || mock.published[0] != "ts:realtime:orders:owner:o1" {
		t.Fatalf("unexpected published channels %v", mock.published)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "ts:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "ts:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.CartKey("sess", "cart_r1"); got != "ts:cart:sess:cart_r1" {
		t.Fatalf("unexpected cart key %s", got)
	}
	if got := client.CartKey("", "cart_r1"); got != "ts:cart:cart_r1" {
		t.Fatalf("session-less cart key should skip empty parts, got %s", got)
	}
	if got := client.LockKey("cron"); got != "ts:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestFixedWindowDropsCounterWhenExpireFails(t *testing.T) {
	mock := newMockCmdable()
	mock.expireErr = errors.New("readonly replica")
	client := &Client{store: mock}

	if _, _, err := client.FixedWindowAllow(context.Background(), "waiter-call:t1", 3, time.Minute); err == nil {
		t.Fatalf("expected expire failure to surface")
	}
	if _, ok := mock.incr["ts:rate_limit:waiter-call:t1"]; ok {
		t.Fatalf("counter without ttl must be removed")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	var client *Client
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, err := (&Client{}).Get(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("closing a nil client should be a no-op: %v", err)
	}
}

func TestIsNil(t *testing.T) {
	if !IsNil(fmt.Errorf("load cart: %w", redis.Nil)) {
		t.Fatalf("wrapped redis.Nil should be detected")
	}
	if IsNil(errors.New("timeout")) {
		t.Fatalf("unexpected nil match")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 12, DialTimeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("url settings not applied: %+v", opts)
	}
	if opts.PoolSize != 12 || opts.DialTimeout != 3*time.Second {
		t.Fatalf("config should fill unset pool values: pool=%d dial=%v", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 4})
	if err != nil {
		t.Fatalf("address config: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 4 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
	expireErr   error
	published   []string
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	if m.expireErr != nil {
		return redis.NewBoolResult(false, m.expireErr)
	}
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
		delete(m.incr, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected eval arity"))
	}
	if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel)
	return redis.NewIntResult(1, nil)
}
