// Package redis holds the small fast-path stores: the rider cooldown cache
// and the accept lock. Both are best-effort; the repository stays the source
// of truth.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ridecore/internal/policy"
)

// CooldownCache remembers a rider's last self-cancellation as a key whose
// TTL equals the remaining cooldown window.
type CooldownCache struct {
	client *redis.Client
}

func NewCooldownCache(client *redis.Client) *CooldownCache {
	return &CooldownCache{client: client}
}

func cooldownKey(riderID uuid.UUID) string {
	return "ride:cooldown:" + riderID.String()
}

// Remaining returns how long the rider still has to wait. found is false
// when the key is absent: the caller cannot tell an evicted entry from a
// rider who never cancelled, so it must consult its source of truth.
func (c *CooldownCache) Remaining(ctx context.Context, riderID uuid.UUID) (time.Duration, bool, error) {
	ttl, err := c.client.TTL(ctx, cooldownKey(riderID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cooldown cache: ttl: %w", err)
	}
	// TTL returns negative durations for missing keys and keys without
	// expiry. Our keys always carry an expiry, so both count as a miss.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// MarkCancelled starts the cooldown window at the cancellation time.
func (c *CooldownCache) MarkCancelled(ctx context.Context, riderID uuid.UUID, at time.Time) error {
	remaining := policy.CooldownPeriod - time.Since(at)
	if remaining <= 0 {
		return nil
	}

	if err := c.client.Set(ctx, cooldownKey(riderID), at.Format(time.RFC3339), remaining).Err(); err != nil {
		return fmt.Errorf("cooldown cache: set: %w", err)
	}
	return nil
}
