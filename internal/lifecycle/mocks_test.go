package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
)

// memRepo is an in-memory RideRepo with the same CAS contract as the
// postgres implementation.
type memRepo struct {
	mu    sync.Mutex
	rides map[uuid.UUID]*models.Ride
	now   func() time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		rides: make(map[uuid.UUID]*models.Ride),
		now:   time.Now,
	}
}

func (r *memRepo) seed(ride *models.Ride) *models.Ride {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	r.rides[ride.ID] = ride
	return ride
}

func (r *memRepo) Create(_ context.Context, draft *models.RideDraft) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ride := &models.Ride{
		ID:             uuid.New(),
		RiderID:        draft.RiderID,
		Status:         types.StatusRequested,
		VehicleClass:   draft.VehicleClass,
		PickupAddress:  draft.PickupAddress,
		DropoffAddress: draft.DropoffAddress,
		PickupCoord:    draft.PickupCoord,
		DropoffCoord:   draft.DropoffCoord,
		BaseFare:       draft.BaseFare,
		RequestedAt:    r.now(),
	}
	fare := draft.BaseFare
	ride.FinalFare = &fare
	r.rides[ride.ID] = ride
	return copyRide(ride), nil
}

func (r *memRepo) Get(_ context.Context, rideID uuid.UUID) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ride, ok := r.rides[rideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	return copyRide(ride), nil
}

func (r *memRepo) FindActiveByRider(_ context.Context, riderID uuid.UUID) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ride := range r.rides {
		if ride.RiderID == riderID && ride.Active() {
			return copyRide(ride), nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindActiveByDriver(_ context.Context, driverID uuid.UUID) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ride := range r.rides {
		if ride.DriverID != nil && *ride.DriverID == driverID && ride.Active() && ride.Status != types.StatusRequested {
			return copyRide(ride), nil
		}
	}
	return nil, nil
}

func (r *memRepo) Update(_ context.Context, rideID uuid.UUID, expected types.RideStatus, patch models.RidePatch) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ride, ok := r.rides[rideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	if ride.Status != expected {
		return nil, types.ErrStatusConflict
	}

	ride.Status = patch.Status
	if patch.DriverID != nil {
		ride.DriverID = patch.DriverID
	}
	if patch.FinalFare != nil {
		ride.FinalFare = patch.FinalFare
	}
	if patch.CancellationFeeApplied != nil {
		ride.CancellationFeeApplied = *patch.CancellationFeeApplied
	}
	if patch.AcceptedAt != nil {
		ride.AcceptedAt = patch.AcceptedAt
	}
	if patch.StartedAt != nil {
		ride.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		ride.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		ride.CancelledAt = patch.CancelledAt
	}
	return copyRide(ride), nil
}

func (r *memRepo) FindHistory(_ context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Ride
	for _, ride := range r.rides {
		if ride.RiderID != userID && (ride.DriverID == nil || *ride.DriverID != userID) {
			continue
		}
		if filter.Status != "" && ride.Status != filter.Status {
			continue
		}
		out = append(out, *copyRide(ride))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) FindRequested(_ context.Context, limit int) ([]models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Ride
	for _, ride := range r.rides {
		if ride.Status == types.StatusRequested {
			out = append(out, *copyRide(ride))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) LastCancelledAt(_ context.Context, riderID uuid.UUID) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last time.Time
	for _, ride := range r.rides {
		if ride.RiderID == riderID && ride.CancelledAt != nil && ride.CancelledAt.After(last) {
			last = *ride.CancelledAt
		}
	}
	return last, nil
}

func copyRide(r *models.Ride) *models.Ride {
	c := *r
	return &c
}

// recordingNotifier captures every emitted event.
type recordingNotifier struct {
	mu        sync.Mutex
	directed  map[uuid.UUID][]models.Event
	broadcast []models.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{directed: make(map[uuid.UUID][]models.Event)}
}

func (n *recordingNotifier) SendTo(_ context.Context, userID uuid.UUID, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.directed[userID] = append(n.directed[userID], event)
}

func (n *recordingNotifier) Broadcast(_ context.Context, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcast = append(n.broadcast, event)
}

func (n *recordingNotifier) broadcasts() []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.broadcast...)
}

func (n *recordingNotifier) directedTo(userID uuid.UUID) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.directed[userID]...)
}

// stubFraud returns canned flags and records invocations.
type stubFraud struct {
	mu       sync.Mutex
	flags    []models.FraudFlag
	runCalls int
}

func (f *stubFraud) RunAll(context.Context, uuid.UUID, time.Time) []models.FraudFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	return f.flags
}

func (f *stubFraud) CheckRideDuration(*models.Ride) *models.FraudFlag {
	return nil
}

// memCooldown is an in-memory CooldownCache.
type memCooldown struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
	now  func() time.Time
	err  error
}

func newMemCooldown(now func() time.Time) *memCooldown {
	return &memCooldown{last: make(map[uuid.UUID]time.Time), now: now}
}

func (c *memCooldown) Remaining(_ context.Context, riderID uuid.UUID) (time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	last, ok := c.last[riderID]
	if !ok {
		return 0, false, nil
	}
	remaining := 10*time.Minute - c.now().Sub(last)
	if remaining < 0 {
		// Expired entries behave like a vanished TTL key.
		return 0, false, nil
	}
	return remaining, true, nil
}

func (c *memCooldown) MarkCancelled(_ context.Context, riderID uuid.UUID, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[riderID] = at
	return nil
}

// drop simulates an eviction or cache restart.
func (c *memCooldown) drop(riderID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, riderID)
}

func (c *memCooldown) has(riderID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.last[riderID]
	return ok
}

// openLocker always grants the lock; correctness is carried by the CAS.
type openLocker struct{}

func (openLocker) Acquire(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (openLocker) Release(context.Context, uuid.UUID) error         { return nil }

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	notifier *recordingNotifier
	fraud    *stubFraud
	cooldown *memCooldown
	clock    *fakeClock
}

func newFixture() *fixture {
	clock := newFakeClock()
	repo := newMemRepo()
	repo.now = clock.Now
	notifier := newRecordingNotifier()
	fraud := &stubFraud{}
	cooldown := newMemCooldown(clock.Now)
	log := logger.InitLogger("lifecycle-test", logger.LevelError)

	svc := NewService(repo, fraud, notifier, cooldown, openLocker{}, nil, log)
	svc.now = clock.Now
	return &fixture{svc: svc, repo: repo, notifier: notifier, fraud: fraud, cooldown: cooldown, clock: clock}
}

func validDraft(riderID uuid.UUID) *models.RideDraft {
	return &models.RideDraft{
		RiderID:        riderID,
		PickupAddress:  "221B Baker Street",
		DropoffAddress: "10 Downing Street",
		PickupCoord:    models.Coordinate{Latitude: 51.5238, Longitude: -0.1586},
		DropoffCoord:   models.Coordinate{Latitude: 51.5034, Longitude: -0.1276},
		BaseFare:       10,
		VehicleClass:   types.ClassUberX,
	}
}
