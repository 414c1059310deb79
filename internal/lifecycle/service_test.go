package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
)

func TestCreate(t *testing.T) {
	t.Run("success broadcasts new ride request", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)

		assert.Equal(t, types.StatusRequested, ride.Status)
		assert.Equal(t, riderID, ride.RiderID)
		assert.Nil(t, ride.DriverID)
		assert.Equal(t, f.clock.Now(), ride.RequestedAt)

		events := f.notifier.broadcasts()
		require.Len(t, events, 1)
		assert.Equal(t, types.EventNewRideRequest, events[0].EventName())
	})

	t.Run("runs fraud checks without blocking", func(t *testing.T) {
		f := newFixture()
		f.fraud.flags = []models.FraudFlag{
			{Reason: "request velocity exceeded", Severity: types.SeverityHigh},
			{Reason: "cancellation rate exceeded", Severity: types.SeverityHigh},
		}

		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, types.StatusRequested, ride.Status)
		assert.Equal(t, 1, f.fraud.runCalls)
	})

	t.Run("rejects second active ride", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		_, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		assert.ErrorIs(t, err, types.ErrActiveRideExists)
	})

	t.Run("allows new ride after previous ride completed", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		driverID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)

		_, err = f.svc.Accept(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		_, err = f.svc.Start(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		_, err = f.svc.Complete(context.Background(), ride.ID, driverID, nil)
		require.NoError(t, err)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		assert.NoError(t, err)
	})

	t.Run("validation failures", func(t *testing.T) {
		f := newFixture()

		tests := []struct {
			name   string
			mutate func(d *models.RideDraft)
		}{
			{"missing rider id", func(d *models.RideDraft) { d.RiderID = uuid.Nil }},
			{"missing pickup address", func(d *models.RideDraft) { d.PickupAddress = "" }},
			{"latitude out of range", func(d *models.RideDraft) { d.PickupCoord.Latitude = 91 }},
			{"longitude out of range", func(d *models.RideDraft) { d.DropoffCoord.Longitude = -181 }},
			{"zero base fare", func(d *models.RideDraft) { d.BaseFare = 0 }},
			{"negative base fare", func(d *models.RideDraft) { d.BaseFare = -3 }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				draft := validDraft(uuid.New())
				tt.mutate(draft)
				_, err := f.svc.Create(context.Background(), draft)
				assert.ErrorIs(t, err, types.ErrValidation)
			})
		}
	})

	t.Run("cancelled context leaves no ride behind", func(t *testing.T) {
		f := newFixture()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.svc.Create(ctx, validDraft(uuid.New()))
		require.Error(t, err)

		rides, err := f.repo.FindRequested(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, rides)
	})
}

func TestCancelCooldown(t *testing.T) {
	t.Run("five minutes after cancelling leaves five minutes of cooldown", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)
		_, err = f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)

		f.clock.Advance(5 * time.Minute)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		require.ErrorIs(t, err, types.ErrCooldownActive)

		var cdErr *types.CooldownError
		require.ErrorAs(t, err, &cdErr)
		assert.Equal(t, 5*time.Minute, cdErr.Remaining)
	})

	t.Run("cooldown expires after ten minutes", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)
		_, err = f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)

		f.clock.Advance(10*time.Minute + time.Second)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		assert.NoError(t, err)
	})

	t.Run("evicted cache entry is restored from the repository", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)
		_, err = f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)

		// Cache restart: the key is gone but the cancelled ride still is.
		f.cooldown.drop(riderID)
		f.clock.Advance(3 * time.Minute)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		require.ErrorIs(t, err, types.ErrCooldownActive)
		assert.True(t, f.cooldown.has(riderID), "cache must be repopulated after a miss")
	})

	t.Run("repository backs the cooldown when the cache is down", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)
		_, err = f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)

		f.cooldown.err = context.DeadlineExceeded
		f.clock.Advance(3 * time.Minute)

		_, err = f.svc.Create(context.Background(), validDraft(riderID))
		assert.ErrorIs(t, err, types.ErrCooldownActive)
	})
}

func TestCancelFeeBands(t *testing.T) {
	seedRequested := func(f *fixture, riderID uuid.UUID, age time.Duration) *models.Ride {
		return f.repo.seed(&models.Ride{
			RiderID:      riderID,
			Status:       types.StatusRequested,
			VehicleClass: types.ClassUberX,
			BaseFare:     10,
			RequestedAt:  f.clock.Now().Add(-age),
		})
	}

	t.Run("within five minutes no fee", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		ride := seedRequested(f, riderID, 4*time.Minute)

		cancelled, err := f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)
		assert.False(t, cancelled.CancellationFeeApplied)
	})

	t.Run("between five and ten minutes no fee", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		ride := seedRequested(f, riderID, 7*time.Minute)

		cancelled, err := f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)
		assert.False(t, cancelled.CancellationFeeApplied)
	})

	t.Run("past ten minutes fee applies", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		ride := seedRequested(f, riderID, 12*time.Minute)

		cancelled, err := f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		require.NoError(t, err)
		assert.True(t, cancelled.CancellationFeeApplied)
	})

	t.Run("more than five minutes after acceptance is too late", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		driverID := uuid.New()
		acceptedAt := f.clock.Now().Add(-6 * time.Minute)
		ride := f.repo.seed(&models.Ride{
			RiderID:      riderID,
			DriverID:     &driverID,
			Status:       types.StatusAccepted,
			VehicleClass: types.ClassUberX,
			BaseFare:     10,
			RequestedAt:  acceptedAt.Add(-time.Minute),
			AcceptedAt:   &acceptedAt,
		})

		_, err := f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		assert.ErrorIs(t, err, types.ErrTooLateToCancel)
	})

	t.Run("in progress ride cannot be cancelled by rider", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		driverID := uuid.New()
		startedAt := f.clock.Now().Add(-time.Minute)
		ride := f.repo.seed(&models.Ride{
			RiderID:     riderID,
			DriverID:    &driverID,
			Status:      types.StatusInProgress,
			BaseFare:    10,
			RequestedAt: startedAt.Add(-5 * time.Minute),
			StartedAt:   &startedAt,
		})

		_, err := f.svc.Cancel(context.Background(), ride.ID, riderID, types.RoleRider)
		assert.ErrorIs(t, err, types.ErrTooLateToCancel)
	})
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture()
	riderID := uuid.New()

	ride, err := f.svc.Create(context.Background(), validDraft(riderID))
	require.NoError(t, err)

	t.Run("driver cannot cancel", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), ride.ID, uuid.New(), types.RoleDriver)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("another rider cannot cancel", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), ride.ID, uuid.New(), types.RoleRider)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("unknown ride", func(t *testing.T) {
		_, err := f.svc.Cancel(context.Background(), uuid.New(), riderID, types.RoleRider)
		assert.ErrorIs(t, err, types.ErrRideNotFound)
	})
}

func TestAccept(t *testing.T) {
	t.Run("assigns driver and notifies the rider", func(t *testing.T) {
		f := newFixture()
		riderID := uuid.New()
		driverID := uuid.New()

		ride, err := f.svc.Create(context.Background(), validDraft(riderID))
		require.NoError(t, err)

		accepted, err := f.svc.Accept(context.Background(), ride.ID, driverID)
		require.NoError(t, err)

		assert.Equal(t, types.StatusAccepted, accepted.Status)
		require.NotNil(t, accepted.DriverID)
		assert.Equal(t, driverID, *accepted.DriverID)
		require.NotNil(t, accepted.AcceptedAt)
		assert.Equal(t, f.clock.Now(), *accepted.AcceptedAt)

		directed := f.notifier.directedTo(riderID)
		require.Len(t, directed, 1)
		assert.Equal(t, types.EventRideAccepted, directed[0].EventName())

		// The payload must carry the rider id: a consumer on another
		// instance has only the message to route by.
		payload, ok := directed[0].(models.RideAcceptedEvent)
		require.True(t, ok)
		assert.Equal(t, riderID, payload.RiderID)
		assert.Equal(t, driverID, payload.DriverID)
	})

	t.Run("exactly one concurrent accept wins", func(t *testing.T) {
		f := newFixture()
		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)

		const drivers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			winners  int
			rejected int
		)
		for i := 0; i < drivers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Accept(context.Background(), ride.ID, uuid.New())

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
					return
				}
				if assert.True(t, isAcceptRaceLoss(err), "unexpected error: %v", err) {
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		assert.Equal(t, drivers-1, rejected)

		final, err := f.repo.Get(context.Background(), ride.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusAccepted, final.Status)
		assert.NotNil(t, final.DriverID)
	})

	t.Run("busy driver cannot accept another ride", func(t *testing.T) {
		f := newFixture()
		driverID := uuid.New()

		first, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.Accept(context.Background(), first.ID, driverID)
		require.NoError(t, err)

		second, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.Accept(context.Background(), second.ID, driverID)
		assert.ErrorIs(t, err, types.ErrDriverBusy)
	})

	t.Run("already accepted ride", func(t *testing.T) {
		f := newFixture()
		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.Accept(context.Background(), ride.ID, uuid.New())
		require.NoError(t, err)

		_, err = f.svc.Accept(context.Background(), ride.ID, uuid.New())
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})

	t.Run("unknown ride", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Accept(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, types.ErrRideNotFound)
	})
}

// isAcceptRaceLoss reports whether err is one of the outcomes a losing
// concurrent accept may observe.
func isAcceptRaceLoss(err error) bool {
	return errors.Is(err, types.ErrInvalidTransition) ||
		errors.Is(err, types.ErrConflictRetryExceeded) ||
		errors.Is(err, types.ErrDriverBusy)
}

func TestStart(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *models.Ride, uuid.UUID) {
		f := newFixture()
		driverID := uuid.New()
		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.Accept(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		return f, ride, driverID
	}

	t.Run("assigned driver starts the ride", func(t *testing.T) {
		f, ride, driverID := setup(t)

		started, err := f.svc.Start(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusInProgress, started.Status)
		assert.NotNil(t, started.StartedAt)
	})

	t.Run("other driver is forbidden", func(t *testing.T) {
		f, ride, _ := setup(t)

		_, err := f.svc.Start(context.Background(), ride.ID, uuid.New())
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("requested ride cannot start", func(t *testing.T) {
		f := newFixture()
		driverID := uuid.New()
		ride := f.repo.seed(&models.Ride{
			RiderID:     uuid.New(),
			DriverID:    &driverID,
			Status:      types.StatusRequested,
			BaseFare:    10,
			RequestedAt: f.clock.Now(),
		})

		_, err := f.svc.Start(context.Background(), ride.ID, driverID)
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})
}

func TestComplete(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *models.Ride, uuid.UUID) {
		f := newFixture()
		driverID := uuid.New()
		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.Accept(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		_, err = f.svc.Start(context.Background(), ride.ID, driverID)
		require.NoError(t, err)
		return f, ride, driverID
	}

	t.Run("final fare defaults to base fare", func(t *testing.T) {
		f, ride, driverID := setup(t)

		completed, err := f.svc.Complete(context.Background(), ride.ID, driverID, nil)
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, completed.Status)
		require.NotNil(t, completed.FinalFare)
		assert.Equal(t, completed.BaseFare, *completed.FinalFare)
	})

	t.Run("actual fare overrides base fare", func(t *testing.T) {
		f, ride, driverID := setup(t)

		actual := 42.5
		completed, err := f.svc.Complete(context.Background(), ride.ID, driverID, &actual)
		require.NoError(t, err)
		require.NotNil(t, completed.FinalFare)
		assert.Equal(t, actual, *completed.FinalFare)
	})

	t.Run("only one terminal timestamp is set", func(t *testing.T) {
		f, ride, driverID := setup(t)

		completed, err := f.svc.Complete(context.Background(), ride.ID, driverID, nil)
		require.NoError(t, err)
		assert.NotNil(t, completed.CompletedAt)
		assert.Nil(t, completed.CancelledAt)
	})

	t.Run("other driver is forbidden", func(t *testing.T) {
		f, ride, _ := setup(t)

		_, err := f.svc.Complete(context.Background(), ride.ID, uuid.New(), nil)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("completed ride cannot complete again", func(t *testing.T) {
		f, ride, driverID := setup(t)

		_, err := f.svc.Complete(context.Background(), ride.ID, driverID, nil)
		require.NoError(t, err)
		_, err = f.svc.Complete(context.Background(), ride.ID, driverID, nil)
		assert.ErrorIs(t, err, types.ErrInvalidTransition)
	})
}

func TestCalculateFare(t *testing.T) {
	t.Run("applies vehicle class multiplier", func(t *testing.T) {
		f := newFixture()
		draft := validDraft(uuid.New())
		draft.BaseFare = 10
		draft.VehicleClass = types.ClassComfort

		ride, err := f.svc.Create(context.Background(), draft)
		require.NoError(t, err)

		updated, err := f.svc.CalculateFare(context.Background(), ride.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.FinalFare)
		assert.InDelta(t, 25.0, *updated.FinalFare, 1e-9)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture()
		draft := validDraft(uuid.New())
		draft.BaseFare = 10
		draft.VehicleClass = types.ClassComfort

		ride, err := f.svc.Create(context.Background(), draft)
		require.NoError(t, err)

		first, err := f.svc.CalculateFare(context.Background(), ride.ID)
		require.NoError(t, err)
		second, err := f.svc.CalculateFare(context.Background(), ride.ID)
		require.NoError(t, err)
		assert.Equal(t, *first.FinalFare, *second.FinalFare)
	})
}

func TestGetAuthorization(t *testing.T) {
	f := newFixture()
	riderID := uuid.New()
	driverID := uuid.New()

	ride, err := f.svc.Create(context.Background(), validDraft(riderID))
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), ride.ID, driverID)
	require.NoError(t, err)

	t.Run("rider sees own ride", func(t *testing.T) {
		got, err := f.svc.Get(context.Background(), ride.ID, &models.User{ID: riderID, Role: types.RoleRider})
		require.NoError(t, err)
		assert.Equal(t, ride.ID, got.ID)
	})

	t.Run("assigned driver sees the ride", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), ride.ID, &models.User{ID: driverID, Role: types.RoleDriver})
		assert.NoError(t, err)
	})

	t.Run("admin sees any ride", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), ride.ID, &models.User{ID: uuid.New(), Role: types.RoleAdmin})
		assert.NoError(t, err)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), ride.ID, &models.User{ID: uuid.New(), Role: types.RoleRider})
		assert.ErrorIs(t, err, types.ErrForbidden)
	})
}

func TestHistoryAndAvailable(t *testing.T) {
	f := newFixture()
	riderID := uuid.New()

	first, err := f.svc.Create(context.Background(), validDraft(riderID))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), first.ID, riderID, types.RoleRider)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)

	_, err = f.svc.Create(context.Background(), validDraft(riderID))
	require.NoError(t, err)

	t.Run("history lists the rider's rides newest first", func(t *testing.T) {
		rides, err := f.svc.History(context.Background(), riderID, models.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, rides, 2)
		assert.Equal(t, types.StatusRequested, rides[0].Status)
		assert.Equal(t, types.StatusCancelled, rides[1].Status)
	})

	t.Run("history filters by status", func(t *testing.T) {
		rides, err := f.svc.History(context.Background(), riderID, models.HistoryFilter{Status: types.StatusCancelled})
		require.NoError(t, err)
		require.Len(t, rides, 1)
		assert.Equal(t, first.ID, rides[0].ID)
	})

	t.Run("available rides lists requested only", func(t *testing.T) {
		rides, err := f.svc.AvailableRides(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rides, 1)
		assert.Equal(t, types.StatusRequested, rides[0].Status)
	})
}

// conflictingRepo forces status conflicts on Update to exercise the retry.
type conflictingRepo struct {
	*memRepo
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) Update(ctx context.Context, rideID uuid.UUID, expected types.RideStatus, patch models.RidePatch) (*models.Ride, error) {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return nil, types.ErrStatusConflict
	}
	r.mu.Unlock()
	return r.memRepo.Update(ctx, rideID, expected, patch)
}

func TestUpdateRetry(t *testing.T) {
	t.Run("single conflict is retried and succeeds", func(t *testing.T) {
		f := newFixture()
		repo := &conflictingRepo{memRepo: f.repo, conflicts: 1}
		f.svc.repo = repo

		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)

		accepted, err := f.svc.Accept(context.Background(), ride.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, types.StatusAccepted, accepted.Status)
	})

	t.Run("second conflict surfaces as retry exceeded", func(t *testing.T) {
		f := newFixture()
		repo := &conflictingRepo{memRepo: f.repo, conflicts: 2}
		f.svc.repo = repo

		ride, err := f.svc.Create(context.Background(), validDraft(uuid.New()))
		require.NoError(t, err)

		_, err = f.svc.Accept(context.Background(), ride.ID, uuid.New())
		assert.ErrorIs(t, err, types.ErrConflictRetryExceeded)
	})
}
