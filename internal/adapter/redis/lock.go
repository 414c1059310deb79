package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acceptLockTTL bounds how long a crashed accepter can hold a ride claim.
const acceptLockTTL = 10 * time.Second

// AcceptLock is a SETNX claim on a ride during accept. It only thins out
// contention between drivers; the repository CAS is what guarantees a single
// winner.
type AcceptLock struct {
	client *redis.Client
}

func NewAcceptLock(client *redis.Client) *AcceptLock {
	return &AcceptLock{client: client}
}

func lockKey(rideID uuid.UUID) string {
	return "ride:accept-lock:" + rideID.String()
}

func (l *AcceptLock) Acquire(ctx context.Context, rideID uuid.UUID) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(rideID), "1", acceptLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("accept lock: setnx: %w", err)
	}
	return ok, nil
}

func (l *AcceptLock) Release(ctx context.Context, rideID uuid.UUID) error {
	if err := l.client.Del(ctx, lockKey(rideID)).Err(); err != nil {
		return fmt.Errorf("accept lock: del: %w", err)
	}
	return nil
}
