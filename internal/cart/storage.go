package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Storage is the durable key-value backend of a cart.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps carts in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// KV is the subset of pkg/redis.Client used by RedisStorage.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(session, key string) string
}

// RedisStorage stores carts in Redis under a per-session namespace, refreshing
// the TTL on every write.
type RedisStorage struct {
	kv      KV
	session string
	ttl     time.Duration
}

func NewRedisStorage(kv KV, session string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{kv: kv, session: session, ttl: ttl}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.kv.Get(ctx, r.kv.CartKey(r.session, key))
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	return r.kv.Set(ctx, r.kv.CartKey(r.session, key), value, r.ttl)
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.kv.Del(ctx, r.kv.CartKey(r.session, key))
}
