// Package fraud implements advisory checks over a party's recent ride
// history. Flags are logged for review; they never block the operation that
// triggered them.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
)

const (
	MaxRidesPerHour            = 10
	SuspiciousCancellationRate = 0.8

	MinRideDuration = 2 * time.Minute
	MaxRideDuration = 24 * time.Hour
)

// RideHistory is the slice of the repository the checks need.
type RideHistory interface {
	CountRequestedSince(ctx context.Context, riderID uuid.UUID, since time.Time) (int, error)
	CountCancelledSince(ctx context.Context, riderID uuid.UUID, since time.Time) (int, error)
}

type Checker struct {
	history RideHistory
	log     logger.Logger
}

func NewChecker(history RideHistory, log logger.Logger) *Checker {
	return &Checker{
		history: history,
		log:     log,
	}
}

// CheckRequestVelocity flags riders who requested more than MaxRidesPerHour
// rides in the trailing hour.
func (c *Checker) CheckRequestVelocity(ctx context.Context, riderID uuid.UUID, now time.Time) (*models.FraudFlag, error) {
	count, err := c.history.CountRequestedSince(ctx, riderID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count requested rides: %w", err)
	}

	if count > MaxRidesPerHour {
		return &models.FraudFlag{
			SubjectID:   riderID,
			Reason:      fmt.Sprintf("rider requested %d rides in the last hour (limit: %d)", count, MaxRidesPerHour),
			Severity:    types.SeverityHigh,
			EvaluatedAt: now,
		}, nil
	}
	return nil, nil
}

// CheckCancellationRate flags riders whose cancellation rate over the
// trailing 24 hours exceeds SuspiciousCancellationRate.
func (c *Checker) CheckCancellationRate(ctx context.Context, riderID uuid.UUID, now time.Time) (*models.FraudFlag, error) {
	since := now.Add(-24 * time.Hour)

	total, err := c.history.CountRequestedSince(ctx, riderID, since)
	if err != nil {
		return nil, fmt.Errorf("count total rides: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	cancelled, err := c.history.CountCancelledSince(ctx, riderID, since)
	if err != nil {
		return nil, fmt.Errorf("count cancelled rides: %w", err)
	}

	rate := float64(cancelled) / float64(total)
	if rate > SuspiciousCancellationRate {
		return &models.FraudFlag{
			SubjectID:   riderID,
			Reason:      fmt.Sprintf("high cancellation rate: %.1f%% (threshold: %.0f%%)", rate*100, SuspiciousCancellationRate*100),
			Severity:    types.SeverityHigh,
			EvaluatedAt: now,
		}, nil
	}
	return nil, nil
}

// CheckRideDuration flags completed rides that were implausibly short or
// long. Rides without both timestamps are skipped.
func (c *Checker) CheckRideDuration(ride *models.Ride) *models.FraudFlag {
	if ride.Status != types.StatusCompleted || ride.StartedAt == nil || ride.CompletedAt == nil {
		return nil
	}

	duration := ride.CompletedAt.Sub(*ride.StartedAt)
	switch {
	case duration < MinRideDuration:
		return &models.FraudFlag{
			SubjectID:   ride.RiderID,
			Reason:      fmt.Sprintf("ride duration %.1f minutes is suspiciously short (minimum: %.0f minutes)", duration.Minutes(), MinRideDuration.Minutes()),
			Severity:    types.SeverityMedium,
			EvaluatedAt: *ride.CompletedAt,
		}
	case duration > MaxRideDuration:
		return &models.FraudFlag{
			SubjectID:   ride.RiderID,
			Reason:      fmt.Sprintf("ride duration %.1f hours is suspiciously long (maximum: %.0f hours)", duration.Hours(), MaxRideDuration.Hours()),
			Severity:    types.SeverityHigh,
			EvaluatedAt: *ride.CompletedAt,
		}
	}
	return nil
}

// RunAll evaluates the history-based checks for a rider. It never fails the
// caller: repository errors and panics are logged and produce no flags.
func (c *Checker) RunAll(ctx context.Context, riderID uuid.UUID, now time.Time) (flags []models.FraudFlag) {
	ctx = wrap.WithAction(wrap.WithUserID(ctx, riderID.String()), "fraud_checks")

	defer func() {
		if p := recover(); p != nil {
			c.log.Warn(ctx, "fraud checks panicked", "panic", fmt.Sprint(p))
			flags = nil
		}
	}()

	if flag, err := c.CheckRequestVelocity(ctx, riderID, now); err != nil {
		c.log.Warn(ctx, "request velocity check failed", "err", err.Error())
	} else if flag != nil {
		flags = append(flags, *flag)
	}

	if flag, err := c.CheckCancellationRate(ctx, riderID, now); err != nil {
		c.log.Warn(ctx, "cancellation rate check failed", "err", err.Error())
	} else if flag != nil {
		flags = append(flags, *flag)
	}

	return flags
}
