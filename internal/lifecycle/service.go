// Package lifecycle orchestrates ride state transitions. Every operation is
// a read-check-write against the repository: the policy package decides
// legality, the repository's status CAS decides races, and only committed
// changes reach the notifier and the audit exchange.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
	"ridecore/pkg/metrics"
)

type Service struct {
	repo      RideRepo
	fraud     FraudChecker
	notifier  Notifier
	cooldown  CooldownCache
	locker    AcceptLocker
	publisher EventPublisher
	log       logger.Logger

	now func() time.Time
}

func NewService(
	repo RideRepo,
	fraud FraudChecker,
	notifier Notifier,
	cooldown CooldownCache,
	locker AcceptLocker,
	publisher EventPublisher,
	log logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		fraud:     fraud,
		notifier:  notifier,
		cooldown:  cooldown,
		locker:    locker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// updateWithRetry applies a CAS update, retrying exactly once after a
// conflict. recheck re-reads the ride and decides whether the retry is still
// legal, returning the expected status for the second attempt.
func (s *Service) updateWithRetry(
	ctx context.Context,
	rideID uuid.UUID,
	expected types.RideStatus,
	patch models.RidePatch,
	recheck func(fresh *models.Ride) (types.RideStatus, error),
) (*models.Ride, error) {
	updated, err := s.repo.Update(ctx, rideID, expected, patch)
	if err == nil {
		return updated, nil
	}
	if !isStatusConflict(err) {
		return nil, err
	}

	fresh, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}

	expected, err = recheck(fresh)
	if err != nil {
		return nil, err
	}

	updated, err = s.repo.Update(ctx, rideID, expected, patch)
	if err == nil {
		return updated, nil
	}
	if isStatusConflict(err) {
		return nil, wrap.Error(ctx, types.ErrConflictRetryExceeded)
	}
	return nil, err
}

func isStatusConflict(err error) bool {
	return errors.Is(err, types.ErrStatusConflict)
}

// audit publishes the transition to the audit exchange; failures are logged
// and swallowed since the state change is already committed.
func (s *Service) audit(ctx context.Context, event models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRideEvent(ctx, event); err != nil {
		s.log.Warn(ctx, "failed to publish ride event", "event", event.EventName(), "err", err.Error())
	}
}

func (s *Service) countRide(status types.RideStatus) {
	metrics.RidesTotal.WithLabelValues(status.String()).Inc()
}

// statusEvent builds the broadcast payload for a committed transition. Only
// the timestamp produced by the transition is included.
func statusEvent(ride *models.Ride) models.RideStatusUpdatedEvent {
	event := models.RideStatusUpdatedEvent{
		RideID:   ride.ID,
		Status:   ride.Status,
		DriverID: ride.DriverID,
	}
	switch ride.Status {
	case types.StatusAccepted:
		event.AcceptedAt = ride.AcceptedAt
	case types.StatusInProgress:
		event.StartedAt = ride.StartedAt
	case types.StatusCompleted:
		event.CompletedAt = ride.CompletedAt
		event.FinalFare = ride.FinalFare
	case types.StatusCancelled:
		event.CancelledAt = ride.CancelledAt
	}
	return event
}
