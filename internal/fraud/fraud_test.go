package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
)

type stubHistory struct {
	requested    int
	cancelled    int
	requestedErr error
	cancelledErr error
}

func (s *stubHistory) CountRequestedSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return s.requested, s.requestedErr
}

func (s *stubHistory) CountCancelledSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return s.cancelled, s.cancelledErr
}

func newChecker(h RideHistory) *Checker {
	return NewChecker(h, logger.InitLogger("fraud-test", logger.LevelError))
}

func TestCheckRequestVelocity(t *testing.T) {
	now := time.Now()
	riderID := uuid.New()

	c := newChecker(&stubHistory{requested: 10})
	flag, err := c.CheckRequestVelocity(context.Background(), riderID, now)
	require.NoError(t, err)
	assert.Nil(t, flag, "exactly the limit is not flagged")

	c = newChecker(&stubHistory{requested: 11})
	flag, err = c.CheckRequestVelocity(context.Background(), riderID, now)
	require.NoError(t, err)
	require.NotNil(t, flag)
	assert.Equal(t, types.SeverityHigh, flag.Severity)
	assert.Equal(t, riderID, flag.SubjectID)
}

func TestCheckCancellationRate(t *testing.T) {
	now := time.Now()
	riderID := uuid.New()

	t.Run("no rides", func(t *testing.T) {
		flag, err := newChecker(&stubHistory{}).CheckCancellationRate(context.Background(), riderID, now)
		require.NoError(t, err)
		assert.Nil(t, flag)
	})

	t.Run("at the threshold", func(t *testing.T) {
		flag, err := newChecker(&stubHistory{requested: 10, cancelled: 8}).CheckCancellationRate(context.Background(), riderID, now)
		require.NoError(t, err)
		assert.Nil(t, flag, "exactly 80% is not flagged")
	})

	t.Run("above the threshold", func(t *testing.T) {
		flag, err := newChecker(&stubHistory{requested: 10, cancelled: 9}).CheckCancellationRate(context.Background(), riderID, now)
		require.NoError(t, err)
		require.NotNil(t, flag)
		assert.Equal(t, types.SeverityHigh, flag.Severity)
	})
}

func TestCheckRideDuration(t *testing.T) {
	c := newChecker(&stubHistory{})
	started := time.Now().Add(-time.Hour)

	mkRide := func(duration time.Duration) *models.Ride {
		completed := started.Add(duration)
		return &models.Ride{
			RiderID:     uuid.New(),
			Status:      types.StatusCompleted,
			StartedAt:   &started,
			CompletedAt: &completed,
		}
	}

	assert.Nil(t, c.CheckRideDuration(mkRide(15*time.Minute)))

	short := c.CheckRideDuration(mkRide(time.Minute))
	require.NotNil(t, short)
	assert.Equal(t, types.SeverityMedium, short.Severity)

	long := c.CheckRideDuration(mkRide(25 * time.Hour))
	require.NotNil(t, long)
	assert.Equal(t, types.SeverityHigh, long.Severity)

	// Non-completed rides and missing timestamps are skipped.
	assert.Nil(t, c.CheckRideDuration(&models.Ride{Status: types.StatusInProgress, StartedAt: &started}))
	assert.Nil(t, c.CheckRideDuration(&models.Ride{Status: types.StatusCompleted}))
}

func TestRunAll_Advisory(t *testing.T) {
	now := time.Now()
	riderID := uuid.New()

	// Eleven requests in the trailing hour: velocity flag fires.
	flags := newChecker(&stubHistory{requested: 11, cancelled: 10}).RunAll(context.Background(), riderID, now)
	require.Len(t, flags, 2)
	assert.Equal(t, types.SeverityHigh, flags[0].Severity)

	// Repository failure contributes an empty list, never an error.
	broken := &stubHistory{requestedErr: errors.New("repo down"), cancelledErr: errors.New("repo down")}
	flags = newChecker(broken).RunAll(context.Background(), riderID, now)
	assert.Empty(t, flags)
}
