package lifecycle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxley/billingkit/pkg/subscription"
)

// Deduper is a best-effort short-circuit for at-least-once webhook delivery.
// It is an optimization, not the correctness mechanism: the monotonic check
// on the subscription row itself is what makes duplicates a no-op, so a
// dedupe failure only costs a redundant (harmless) apply attempt.
type Deduper interface {
	// Seen reports whether the event was already fully processed.
	Seen(ctx context.Context, provider subscription.Provider, eventID string) (bool, error)

	// Mark records the event as processed. Called only after a successful
	// apply so a failed delivery is retried on redelivery.
	Mark(ctx context.Context, provider subscription.Provider, eventID string) error
}

// RedisDeduper keeps TTL markers per (provider, event ID). Events are
// transient and never persisted beyond this window.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a Deduper with the given marker TTL; zero defaults
// to 24h, comfortably longer than providers' redelivery horizons.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("lifecycle: redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(provider subscription.Provider, eventID string) string {
	return "billing:webhook:" + string(provider) + ":" + eventID
}

func (d *RedisDeduper) Seen(ctx context.Context, provider subscription.Provider, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKey(provider, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, provider subscription.Provider, eventID string) error {
	return d.client.Set(ctx, dedupeKey(provider, eventID), 1, d.ttl).Err()
}
