package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
)

// RideRepo is the persistence abstraction for ride records. Update carries
// the expected current status: the repository must apply the patch only if
// the stored status still matches, returning types.ErrStatusConflict
// otherwise. That compare-and-swap is what serializes racing transitions.
type RideRepo interface {
	Create(ctx context.Context, draft *models.RideDraft) (*models.Ride, error)
	Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	FindActiveByRider(ctx context.Context, riderID uuid.UUID) (*models.Ride, error)
	FindActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error)
	Update(ctx context.Context, rideID uuid.UUID, expected types.RideStatus, patch models.RidePatch) (*models.Ride, error)
	FindHistory(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.Ride, error)
	FindRequested(ctx context.Context, limit int) ([]models.Ride, error)
	LastCancelledAt(ctx context.Context, riderID uuid.UUID) (time.Time, error)
}

// Notifier fans committed lifecycle events out to connected parties.
type Notifier interface {
	SendTo(ctx context.Context, userID uuid.UUID, event models.Event)
	Broadcast(ctx context.Context, event models.Event)
}

// FraudChecker produces advisory flags. Implementations must never fail the
// calling operation.
type FraudChecker interface {
	RunAll(ctx context.Context, riderID uuid.UUID, now time.Time) []models.FraudFlag
	CheckRideDuration(ride *models.Ride) *models.FraudFlag
}

// CooldownCache is the fast path for the rider cooldown window. The
// repository's last cancelled ride stays the source of truth: a cache error
// or a missing entry both mean falling back to it. found must be false for
// an absent key — an evicted entry is not the same as an expired cooldown.
type CooldownCache interface {
	Remaining(ctx context.Context, riderID uuid.UUID) (remaining time.Duration, found bool, err error)
	MarkCancelled(ctx context.Context, riderID uuid.UUID, at time.Time) error
}

// AcceptLocker grants a short-lived exclusive claim on a ride during accept.
// It only thins out contention: correctness rests on the repository CAS.
type AcceptLocker interface {
	Acquire(ctx context.Context, rideID uuid.UUID) (bool, error)
	Release(ctx context.Context, rideID uuid.UUID) error
}

// EventPublisher pushes committed transitions onto the audit exchange.
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, event models.Event) error
}
