// Package policy holds the pure rules of the ride lifecycle: transition
// legality, cancellation windows, rider cooldown and fare computation.
// Everything here is deterministic given the ride and the caller's clock.
package policy

import (
	"time"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
)

const (
	// AcceptedCancelWindow is the flat cutoff after acceptance. It is a
	// different rule than the fee bands below and must stay separate: this
	// one forbids the cancellation, the bands only price it.
	AcceptedCancelWindow = 5 * time.Minute

	// Fee bands measured from requested_at.
	FeeGraceWindow   = 5 * time.Minute
	FeeWarningWindow = 10 * time.Minute

	// CooldownPeriod is how long a rider waits after a self-cancellation
	// before requesting again.
	CooldownPeriod = 10 * time.Minute
)

var transitions = map[types.RideStatus][]types.RideStatus{
	types.StatusRequested:  {types.StatusAccepted, types.StatusCancelled},
	types.StatusAccepted:   {types.StatusInProgress, types.StatusCancelled},
	types.StatusInProgress: {types.StatusCompleted, types.StatusCancelled},
	types.StatusCompleted:  {},
	types.StatusCancelled:  {},
}

// CanTransition reports whether the lifecycle allows moving from cur to next.
func CanTransition(cur, next types.RideStatus) bool {
	for _, s := range transitions[cur] {
		if s == next {
			return true
		}
	}
	return false
}

// CancelDecision is the outcome of evaluating a rider's cancellation.
type CancelDecision struct {
	Allowed    bool
	FeeApplied bool
	Warning    bool
	Reason     string
}

// EvaluateCancellation applies both cancellation rules:
//
//  1. the flat post-acceptance cutoff — an accepted ride cannot be cancelled
//     more than 5 minutes after accepted_at;
//  2. the fee bands since requested_at — ≤5min free, 5–10min free with a
//     warning, >10min the cancellation fee applies.
func EvaluateCancellation(ride *models.Ride, now time.Time) CancelDecision {
	switch ride.Status {
	case types.StatusRequested, types.StatusAccepted:
	default:
		return CancelDecision{Reason: "this ride cannot be cancelled at this stage"}
	}

	if ride.Status == types.StatusAccepted && ride.AcceptedAt != nil {
		if now.Sub(*ride.AcceptedAt) > AcceptedCancelWindow {
			return CancelDecision{Reason: "cannot cancel ride after 5 minutes of acceptance"}
		}
	}

	elapsed := now.Sub(ride.RequestedAt)
	switch {
	case elapsed <= FeeGraceWindow:
		return CancelDecision{Allowed: true}
	case elapsed <= FeeWarningWindow:
		return CancelDecision{Allowed: true, Warning: true}
	default:
		return CancelDecision{Allowed: true, FeeApplied: true}
	}
}

// Cooldown returns how much longer the rider must wait after their last
// self-cancellation. A zero lastCancelledAt means no recent cancellation.
func Cooldown(lastCancelledAt, now time.Time) time.Duration {
	if lastCancelledAt.IsZero() {
		return 0
	}
	remaining := CooldownPeriod - now.Sub(lastCancelledAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

var fareMultipliers = map[types.VehicleClass]float64{
	types.ClassUberX:   1.2,
	types.ClassUberXL:  1.8,
	types.ClassComfort: 2.5,
	types.ClassBlack:   3.5,
	types.ClassPool:    0.8,
}

// ComputeFare prices a ride from its base fare and vehicle class. Unknown
// classes fall back to the uber-x multiplier.
func ComputeFare(baseFare float64, class types.VehicleClass) float64 {
	multiplier, ok := fareMultipliers[class]
	if !ok {
		multiplier = fareMultipliers[types.ClassUberX]
	}
	return baseFare * multiplier
}
