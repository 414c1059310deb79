package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/internal/policy"
	wrap "ridecore/pkg/logger/wrapper"
)

// Create registers a new ride request for the rider. The ride is rejected if
// the rider already has an active ride or is inside the cancellation
// cooldown. Fraud checks run after the write and never block.
func (s *Service) Create(ctx context.Context, draft *models.RideDraft) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(ctx, draft.RiderID.String()), "create_ride")

	if err := validateDraft(draft); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	active, err := s.repo.FindActiveByRider(ctx, draft.RiderID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if active != nil {
		return nil, wrap.Error(ctx, types.ErrActiveRideExists)
	}

	if remaining, err := s.cooldownRemaining(ctx, draft.RiderID); err != nil {
		return nil, wrap.Error(ctx, err)
	} else if remaining > 0 {
		return nil, wrap.Error(ctx, &types.CooldownError{Remaining: remaining})
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	ride, err := s.repo.Create(ctx, draft)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("could not create ride: %w", err))
	}
	ctx = wrap.WithRideID(ctx, ride.ID.String())
	s.countRide(types.StatusRequested)

	for _, flag := range s.fraud.RunAll(ctx, draft.RiderID, s.now()) {
		s.log.Warn(ctx, "fraud flag raised", "reason", flag.Reason, "severity", flag.Severity)
	}

	event := models.NewRideRequestEvent{
		RideID:         ride.ID,
		RiderID:        ride.RiderID,
		PickupAddress:  ride.PickupAddress,
		DropoffAddress: ride.DropoffAddress,
		PickupCoord:    ride.PickupCoord,
		DropoffCoord:   ride.DropoffCoord,
		BaseFare:       ride.BaseFare,
		VehicleClass:   ride.VehicleClass,
		RequestedAt:    ride.RequestedAt,
	}
	s.audit(ctx, event)
	s.notifier.Broadcast(ctx, event)

	s.log.Info(ctx, "ride requested", "vehicle_class", ride.VehicleClass)
	return ride, nil
}

// Accept assigns the driver to a requested ride. At most one Accept succeeds
// per ride: the repository CAS rejects the loser, who gets either
// InvalidTransition (status already moved) or ConflictRetryExceeded.
func (s *Service) Accept(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(wrap.WithRideID(ctx, rideID.String()), driverID.String()), "accept_ride")

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, rideID)
		if err != nil {
			// Lock store being down must not stop accepts; the CAS
			// below still guarantees a single winner.
			s.log.Warn(ctx, "accept lock unavailable", "err", err.Error())
		} else if !ok {
			return nil, wrap.Error(ctx, types.ErrConflictRetryExceeded)
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), rideID); err != nil {
					s.log.Warn(ctx, "failed to release accept lock", "err", err.Error())
				}
			}()
		}
	}

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if ride.Status != types.StatusRequested {
		return nil, wrap.Error(ctx, &types.TransitionError{From: ride.Status, To: types.StatusAccepted})
	}

	busy, err := s.repo.FindActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if busy != nil {
		return nil, wrap.Error(ctx, types.ErrDriverBusy)
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := s.now()
	patch := models.RidePatch{
		Status:     types.StatusAccepted,
		DriverID:   &driverID,
		AcceptedAt: &now,
	}

	updated, err := s.updateWithRetry(ctx, rideID, types.StatusRequested, patch,
		func(fresh *models.Ride) (types.RideStatus, error) {
			if fresh.Status != types.StatusRequested {
				return "", &types.TransitionError{From: fresh.Status, To: types.StatusAccepted}
			}
			return types.StatusRequested, nil
		})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	s.countRide(types.StatusAccepted)

	s.audit(ctx, statusEvent(updated))
	s.notifier.Broadcast(ctx, statusEvent(updated))
	accepted := models.RideAcceptedEvent{
		RideID:     updated.ID,
		RiderID:    updated.RiderID,
		DriverID:   driverID,
		AcceptedAt: now,
	}
	s.audit(ctx, accepted)
	s.notifier.SendTo(ctx, updated.RiderID, accepted)

	s.log.Info(ctx, "ride accepted")
	return updated, nil
}

// Start moves an accepted ride to in_progress. Only the assigned driver may
// start it.
func (s *Service) Start(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(wrap.WithRideID(ctx, rideID.String()), driverID.String()), "start_ride")

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return nil, wrap.Error(ctx, types.ErrForbidden)
	}
	if ride.Status != types.StatusAccepted {
		return nil, wrap.Error(ctx, &types.TransitionError{From: ride.Status, To: types.StatusInProgress})
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := s.now()
	patch := models.RidePatch{
		Status:    types.StatusInProgress,
		StartedAt: &now,
	}

	updated, err := s.updateWithRetry(ctx, rideID, types.StatusAccepted, patch,
		func(fresh *models.Ride) (types.RideStatus, error) {
			if fresh.Status != types.StatusAccepted {
				return "", &types.TransitionError{From: fresh.Status, To: types.StatusInProgress}
			}
			return types.StatusAccepted, nil
		})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	s.countRide(types.StatusInProgress)

	s.audit(ctx, statusEvent(updated))
	s.notifier.Broadcast(ctx, statusEvent(updated))

	s.log.Info(ctx, "ride started")
	return updated, nil
}

// Complete finishes an in-progress ride. The final fare is the driver's
// actual fare when supplied, the base fare otherwise. The ride-duration
// fraud check runs on the committed ride.
func (s *Service) Complete(ctx context.Context, rideID, driverID uuid.UUID, actualFare *float64) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(wrap.WithRideID(ctx, rideID.String()), driverID.String()), "complete_ride")

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return nil, wrap.Error(ctx, types.ErrForbidden)
	}
	if ride.Status != types.StatusInProgress {
		return nil, wrap.Error(ctx, &types.TransitionError{From: ride.Status, To: types.StatusCompleted})
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	now := s.now()
	finalFare := ride.BaseFare
	if actualFare != nil {
		finalFare = *actualFare
	}
	patch := models.RidePatch{
		Status:      types.StatusCompleted,
		FinalFare:   &finalFare,
		CompletedAt: &now,
	}

	updated, err := s.updateWithRetry(ctx, rideID, types.StatusInProgress, patch,
		func(fresh *models.Ride) (types.RideStatus, error) {
			if fresh.Status != types.StatusInProgress {
				return "", &types.TransitionError{From: fresh.Status, To: types.StatusCompleted}
			}
			return types.StatusInProgress, nil
		})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	s.countRide(types.StatusCompleted)

	if flag := s.fraud.CheckRideDuration(updated); flag != nil {
		s.log.Warn(ctx, "fraud flag raised", "reason", flag.Reason, "severity", flag.Severity)
	}

	s.audit(ctx, statusEvent(updated))
	s.notifier.Broadcast(ctx, statusEvent(updated))

	s.log.Info(ctx, "ride completed", "final_fare", finalFare)
	return updated, nil
}

// Cancel lets the owning rider cancel a requested or accepted ride. The fee
// bands since requested_at decide whether the cancellation fee applies; the
// flat 5-minute cutoff since acceptance can forbid it outright.
func (s *Service) Cancel(ctx context.Context, rideID, actingPartyID uuid.UUID, role types.UserRole) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(wrap.WithRideID(ctx, rideID.String()), actingPartyID.String()), "cancel_ride")

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if role != types.RoleRider || ride.RiderID != actingPartyID {
		return nil, wrap.Error(ctx, types.ErrForbidden)
	}

	now := s.now()
	decision := policy.EvaluateCancellation(ride, now)
	if !decision.Allowed {
		return nil, wrap.Error(ctx, fmt.Errorf("%w: %s", types.ErrTooLateToCancel, decision.Reason))
	}
	if decision.Warning {
		s.log.Warn(ctx, "late cancellation", "elapsed", now.Sub(ride.RequestedAt).Round(time.Second).String())
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap.Error(ctx, err)
	}

	feeApplied := decision.FeeApplied
	patch := models.RidePatch{
		Status:                 types.StatusCancelled,
		CancelledAt:            &now,
		CancellationFeeApplied: &feeApplied,
	}

	updated, err := s.updateWithRetry(ctx, rideID, ride.Status, patch,
		func(fresh *models.Ride) (types.RideStatus, error) {
			// The fee depends only on requested_at, which never
			// changes; only legality needs re-checking.
			d := policy.EvaluateCancellation(fresh, now)
			if !d.Allowed {
				return "", fmt.Errorf("%w: %s", types.ErrTooLateToCancel, d.Reason)
			}
			return fresh.Status, nil
		})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	s.countRide(types.StatusCancelled)

	if s.cooldown != nil {
		if err := s.cooldown.MarkCancelled(ctx, updated.RiderID, now); err != nil {
			s.log.Warn(ctx, "failed to mark cooldown", "err", err.Error())
		}
	}

	s.audit(ctx, statusEvent(updated))
	s.notifier.Broadcast(ctx, statusEvent(updated))

	s.log.Info(ctx, "ride cancelled", "fee_applied", updated.CancellationFeeApplied)
	return updated, nil
}

// CalculateFare recomputes the final fare from the base fare and vehicle
// class. Idempotent: calling it repeatedly without other mutations yields
// the same fare.
func (s *Service) CalculateFare(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithRideID(ctx, rideID.String()), "calculate_fare")

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	fare := policy.ComputeFare(ride.BaseFare, ride.VehicleClass)
	patch := models.RidePatch{
		Status:    ride.Status,
		FinalFare: &fare,
	}

	updated, err := s.updateWithRetry(ctx, rideID, ride.Status, patch,
		func(fresh *models.Ride) (types.RideStatus, error) {
			return fresh.Status, nil
		})
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	return updated, nil
}

// Get returns one ride. Only the ride's rider, its driver and admins may see
// it.
func (s *Service) Get(ctx context.Context, rideID uuid.UUID, caller *models.User) (*models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithRideID(ctx, rideID.String()), "get_ride")

	ride, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}

	if caller.Role != types.RoleAdmin &&
		ride.RiderID != caller.ID &&
		(ride.DriverID == nil || *ride.DriverID != caller.ID) {
		return nil, wrap.Error(ctx, types.ErrForbidden)
	}

	return ride, nil
}

// History lists a party's rides, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.Ride, error) {
	ctx = wrap.WithAction(wrap.WithUserID(ctx, userID.String()), "ride_history")

	rides, err := s.repo.FindHistory(ctx, userID, filter)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return rides, nil
}

// AvailableRides lists requested rides a driver could accept.
func (s *Service) AvailableRides(ctx context.Context, limit int) ([]models.Ride, error) {
	ctx = wrap.WithAction(ctx, "available_rides")

	rides, err := s.repo.FindRequested(ctx, limit)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return rides, nil
}

// cooldownRemaining consults the cache first and falls back to the
// repository when the cache errors or misses. A miss on a healthy cache is
// repopulated: an evicted key must not void an active cooldown.
func (s *Service) cooldownRemaining(ctx context.Context, riderID uuid.UUID) (time.Duration, error) {
	now := s.now()

	repopulate := false
	if s.cooldown != nil {
		remaining, found, err := s.cooldown.Remaining(ctx, riderID)
		switch {
		case err != nil:
			s.log.Warn(ctx, "cooldown cache unavailable, falling back to repository", "err", err.Error())
		case found:
			return remaining, nil
		default:
			repopulate = true
		}
	}

	lastCancelled, err := s.repo.LastCancelledAt(ctx, riderID)
	if err != nil {
		return 0, err
	}

	remaining := policy.Cooldown(lastCancelled, now)
	if repopulate && remaining > 0 {
		if err := s.cooldown.MarkCancelled(ctx, riderID, lastCancelled); err != nil {
			s.log.Warn(ctx, "failed to repopulate cooldown cache", "err", err.Error())
		}
	}
	return remaining, nil
}

func validateDraft(draft *models.RideDraft) error {
	switch {
	case draft.RiderID == uuid.Nil:
		return fmt.Errorf("%w: rider id is required", types.ErrValidation)
	case draft.PickupAddress == "" || draft.DropoffAddress == "":
		return fmt.Errorf("%w: pickup and dropoff addresses are required", types.ErrValidation)
	case !validCoord(draft.PickupCoord):
		return fmt.Errorf("%w: pickup coordinates out of range", types.ErrValidation)
	case !validCoord(draft.DropoffCoord):
		return fmt.Errorf("%w: dropoff coordinates out of range", types.ErrValidation)
	case draft.BaseFare <= 0:
		return fmt.Errorf("%w: base fare must be positive", types.ErrValidation)
	}
	return nil
}

func validCoord(c models.Coordinate) bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
