package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

var errEmptyDedupeKey = errors.New("webhook dedupe key is empty")

// IdempotencyGuard records which (provider, reference, status) triples were
// merged so a redelivered callback becomes a no-op. Each marker holds the
// time it was first applied.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	clock func() time.Time
}

// NewIdempotencyGuard keys markers under scope. A zero ttl keeps them forever.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("webhook guard needs a redis store")
	case ttl < 0:
		return nil, fmt.Errorf("webhook dedupe ttl %s is negative", ttl)
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("webhook guard scope is empty")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope, clock: time.Now}, nil
}

// dedupeKey names one final outcome of one payment attempt.
func dedupeKey(provider enums.PaymentMethod, reference string, status payments.VerifyStatus) string {
	return strings.Join([]string{string(provider), reference, string(status)}, ":")
}

// CheckAndMark returns true when key was applied before. Otherwise it claims
// key and returns false.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyDedupeKey
	}
	stamp := g.clock().UTC().Format(time.RFC3339Nano)
	claimed, err := g.store.SetNX(ctx, g.redisKey(key), stamp, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim webhook %s: %w", key, err)
	}
	return !claimed, nil
}

// Delete drops the marker for key so the next delivery is applied again.
func (g *IdempotencyGuard) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errEmptyDedupeKey
	}
	if err := g.store.Del(ctx, g.redisKey(key)); err != nil {
		return fmt.Errorf("release webhook %s: %w", key, err)
	}
	return nil
}

func (g *IdempotencyGuard) redisKey(key string) string {
	return g.store.IdempotencyKey(g.scope, key)
}
