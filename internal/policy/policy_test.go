package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
)

func TestCanTransition_Table(t *testing.T) {
	allowed := []struct {
		from, to types.RideStatus
	}{
		{types.StatusRequested, types.StatusAccepted},
		{types.StatusRequested, types.StatusCancelled},
		{types.StatusAccepted, types.StatusInProgress},
		{types.StatusAccepted, types.StatusCancelled},
		{types.StatusInProgress, types.StatusCompleted},
		{types.StatusInProgress, types.StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	all := []types.RideStatus{
		types.StatusRequested, types.StatusAccepted, types.StatusInProgress,
		types.StatusCompleted, types.StatusCancelled,
	}
	for _, to := range all {
		assert.False(t, CanTransition(types.StatusCompleted, to), "completed is terminal")
		assert.False(t, CanTransition(types.StatusCancelled, to), "cancelled is terminal")
	}
	assert.False(t, CanTransition(types.StatusRequested, types.StatusInProgress))
	assert.False(t, CanTransition(types.StatusRequested, types.StatusCompleted))
	assert.False(t, CanTransition(types.StatusAccepted, types.StatusRequested))
	assert.False(t, CanTransition(types.StatusInProgress, types.StatusRequested))
}

// Any chain of legal transitions from requested must hit a terminal state in
// at most three hops.
func TestCanTransition_ReachesTerminalWithinThreeHops(t *testing.T) {
	all := []types.RideStatus{
		types.StatusRequested, types.StatusAccepted, types.StatusInProgress,
		types.StatusCompleted, types.StatusCancelled,
	}

	var longest func(from types.RideStatus, depth int) int
	longest = func(from types.RideStatus, depth int) int {
		require.LessOrEqual(t, depth, 5, "cycle detected starting from %s", from)
		max := depth
		for _, to := range all {
			if CanTransition(from, to) {
				if d := longest(to, depth+1); d > max {
					max = d
				}
			}
		}
		return max
	}

	assert.Equal(t, 3, longest(types.StatusRequested, 0))
}

func TestEvaluateCancellation_FeeBands(t *testing.T) {
	now := time.Now()
	ride := &models.Ride{
		Status:      types.StatusRequested,
		RequestedAt: now,
	}

	tests := []struct {
		name    string
		at      time.Time
		allowed bool
		fee     bool
		warning bool
	}{
		{"immediately", now, true, false, false},
		{"at 5 minutes", now.Add(5 * time.Minute), true, false, false},
		{"at 6 minutes", now.Add(6 * time.Minute), true, false, true},
		{"at 10 minutes", now.Add(10 * time.Minute), true, false, true},
		{"at 11 minutes", now.Add(11 * time.Minute), true, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := EvaluateCancellation(ride, tc.at)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.fee, d.FeeApplied)
			assert.Equal(t, tc.warning, d.Warning)
		})
	}
}

func TestEvaluateCancellation_AcceptedCutoff(t *testing.T) {
	now := time.Now()
	accepted := now.Add(-6 * time.Minute)
	ride := &models.Ride{
		Status:      types.StatusAccepted,
		RequestedAt: now.Add(-8 * time.Minute),
		AcceptedAt:  &accepted,
	}

	d := EvaluateCancellation(ride, now)
	assert.False(t, d.Allowed, "accepted rides cannot be cancelled after 5 minutes")

	// Within the window the fee bands still apply on requested_at.
	recent := now.Add(-2 * time.Minute)
	ride.AcceptedAt = &recent
	d = EvaluateCancellation(ride, now)
	assert.True(t, d.Allowed)
	assert.True(t, d.Warning, "8 minutes since request lands in the warning band")
	assert.False(t, d.FeeApplied)
}

func TestEvaluateCancellation_TerminalAndInProgress(t *testing.T) {
	now := time.Now()
	for _, status := range []types.RideStatus{
		types.StatusInProgress, types.StatusCompleted, types.StatusCancelled,
	} {
		ride := &models.Ride{Status: status, RequestedAt: now.Add(-time.Minute)}
		d := EvaluateCancellation(ride, now)
		assert.False(t, d.Allowed, "status %s must not be cancellable", status)
	}
}

func TestCooldown(t *testing.T) {
	now := time.Now()

	assert.Zero(t, Cooldown(time.Time{}, now), "no cancellation means no cooldown")
	assert.Zero(t, Cooldown(now.Add(-10*time.Minute), now))
	assert.Zero(t, Cooldown(now.Add(-time.Hour), now))

	remaining := Cooldown(now.Add(-5*time.Minute), now)
	assert.Equal(t, 5*time.Minute, remaining)
}

func TestComputeFare(t *testing.T) {
	tests := []struct {
		class types.VehicleClass
		base  float64
		want  float64
	}{
		{types.ClassUberX, 10, 12},
		{types.ClassUberXL, 10, 18},
		{types.ClassComfort, 10, 25},
		{types.ClassBlack, 10, 35},
		{types.ClassPool, 10, 8},
		{types.VehicleClass("rickshaw"), 10, 12}, // unknown falls back to uber-x
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, ComputeFare(tc.base, tc.class), 1e-9, "class %s", tc.class)
	}
}
