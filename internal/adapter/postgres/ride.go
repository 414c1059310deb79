package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/metrics"
	pgdb "ridecore/pkg/postgres"
	"ridecore/pkg/trm"
)

const serviceLabel = "ride-repo"

// RideRepo persists rides and their transition history. Update is a
// compare-and-swap on status: the patch lands only if the stored status still
// equals the expected one.
type RideRepo struct {
	db *pgxpool.Pool
	tx trm.TxManager
}

func NewRideRepo(db *pgxpool.Pool, tx trm.TxManager) *RideRepo {
	return &RideRepo{db: db, tx: tx}
}

const rideColumns = `
	id, rider_id, driver_id, status, vehicle_class,
	pickup_address, dropoff_address,
	pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
	base_fare, final_fare, cancellation_fee_applied,
	requested_at, accepted_at, started_at, completed_at, cancelled_at`

func scanRide(row pgx.Row) (*models.Ride, error) {
	var ride models.Ride
	err := row.Scan(
		&ride.ID, &ride.RiderID, &ride.DriverID, &ride.Status, &ride.VehicleClass,
		&ride.PickupAddress, &ride.DropoffAddress,
		&ride.PickupCoord.Latitude, &ride.PickupCoord.Longitude,
		&ride.DropoffCoord.Latitude, &ride.DropoffCoord.Longitude,
		&ride.BaseFare, &ride.FinalFare, &ride.CancellationFeeApplied,
		&ride.RequestedAt, &ride.AcceptedAt, &ride.StartedAt, &ride.CompletedAt, &ride.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

// Create inserts the ride and its initial history row in one transaction.
func (r *RideRepo) Create(ctx context.Context, draft *models.RideDraft) (*models.Ride, error) {
	start := time.Now()
	var ride *models.Ride

	err := r.tx.Do(ctx, func(ctx context.Context) error {
		q := TxorDB(ctx, r.db)

		query := `
			INSERT INTO rides (rider_id, status, vehicle_class,
			                   pickup_address, dropoff_address,
			                   pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			                   base_fare, final_fare)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING ` + rideColumns + `;`

		row := q.QueryRow(ctx, query,
			draft.RiderID, types.StatusRequested, draft.VehicleClass,
			draft.PickupAddress, draft.DropoffAddress,
			draft.PickupCoord.Latitude, draft.PickupCoord.Longitude,
			draft.DropoffCoord.Latitude, draft.DropoffCoord.Longitude,
			draft.BaseFare,
		)

		var err error
		ride, err = scanRide(row)
		if err != nil {
			// The partial unique index on active rides backstops the
			// service-level check under races.
			if pgdb.IsUniqueViolation(err) {
				return types.ErrActiveRideExists
			}
			return storageErr("Create", err)
		}

		return r.insertEvent(ctx, q, ride.ID, types.StatusRequested, ride)
	})
	metrics.RecordDatabaseQuery(serviceLabel, "create", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (r *RideRepo) Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1;`

	ride, err := scanRide(q.QueryRow(ctx, query, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrRideNotFound
		}
		return nil, storageErr("Get", err)
	}
	return ride, nil
}

func (r *RideRepo) FindActiveByRider(ctx context.Context, riderID uuid.UUID) (*models.Ride, error) {
	return r.findActive(ctx, "rider_id", riderID)
}

func (r *RideRepo) FindActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error) {
	return r.findActive(ctx, "driver_id", driverID)
}

func (r *RideRepo) findActive(ctx context.Context, column string, id uuid.UUID) (*models.Ride, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE ` + column + ` = $1 AND status NOT IN ($2, $3)
		LIMIT 1;`

	ride, err := scanRide(q.QueryRow(ctx, query, id, types.StatusCompleted, types.StatusCancelled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("findActive "+column, err)
	}
	return ride, nil
}

// Update applies the patch only while the stored status equals expected.
// A vanished row maps to ErrRideNotFound, a moved status to
// ErrStatusConflict. The history row is written in the same transaction.
func (r *RideRepo) Update(ctx context.Context, rideID uuid.UUID, expected types.RideStatus, patch models.RidePatch) (*models.Ride, error) {
	start := time.Now()
	var ride *models.Ride

	err := r.tx.Do(ctx, func(ctx context.Context) error {
		q := TxorDB(ctx, r.db)

		query := `
			UPDATE rides
			SET status = $3,
			    driver_id = COALESCE($4, driver_id),
			    final_fare = COALESCE($5, final_fare),
			    cancellation_fee_applied = COALESCE($6, cancellation_fee_applied),
			    accepted_at = COALESCE($7, accepted_at),
			    started_at = COALESCE($8, started_at),
			    completed_at = COALESCE($9, completed_at),
			    cancelled_at = COALESCE($10, cancelled_at),
			    updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING ` + rideColumns + `;`

		row := q.QueryRow(ctx, query,
			rideID, expected,
			patch.Status, patch.DriverID, patch.FinalFare, patch.CancellationFeeApplied,
			patch.AcceptedAt, patch.StartedAt, patch.CompletedAt, patch.CancelledAt,
		)

		var err error
		ride, err = scanRide(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.classifyMiss(ctx, q, rideID)
			}
			return storageErr("Update", err)
		}

		return r.insertEvent(ctx, q, rideID, patch.Status, ride)
	})
	metrics.RecordDatabaseQuery(serviceLabel, "update", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// classifyMiss distinguishes a missing ride from a status that moved under
// the caller.
func (r *RideRepo) classifyMiss(ctx context.Context, q Querier, rideID uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1);`, rideID).Scan(&exists); err != nil {
		return storageErr("classifyMiss", err)
	}
	if !exists {
		return types.ErrRideNotFound
	}
	return types.ErrStatusConflict
}

func (r *RideRepo) insertEvent(ctx context.Context, q Querier, rideID uuid.UUID, status types.RideStatus, ride *models.Ride) error {
	payload, err := json.Marshal(ride)
	if err != nil {
		return fmt.Errorf("ride repo: marshal event payload: %w", err)
	}

	query := `INSERT INTO ride_events (ride_id, status, payload) VALUES ($1, $2, $3);`
	if _, err := q.Exec(ctx, query, rideID, status, payload); err != nil {
		return storageErr("insertEvent", err)
	}
	return nil
}

func (r *RideRepo) FindHistory(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.Ride, error) {
	q := TxorDB(ctx, r.db)

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE (rider_id = $1 OR driver_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY requested_at DESC
		LIMIT $3 OFFSET $4;`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := q.Query(ctx, query, userID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, storageErr("FindHistory", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

func (r *RideRepo) FindRequested(ctx context.Context, limit int) ([]models.Ride, error) {
	q := TxorDB(ctx, r.db)

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE status = $1
		ORDER BY requested_at ASC
		LIMIT $2;`

	rows, err := q.Query(ctx, query, types.StatusRequested, limit)
	if err != nil {
		return nil, storageErr("FindRequested", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

func collectRides(rows pgx.Rows) ([]models.Ride, error) {
	var rides []models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		rides = append(rides, *ride)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return rides, nil
}

// LastCancelledAt returns the zero time when the rider has never cancelled.
func (r *RideRepo) LastCancelledAt(ctx context.Context, riderID uuid.UUID) (time.Time, error) {
	q := TxorDB(ctx, r.db)

	var last *time.Time
	query := `SELECT MAX(cancelled_at) FROM rides WHERE rider_id = $1 AND status = $2;`
	if err := q.QueryRow(ctx, query, riderID, types.StatusCancelled).Scan(&last); err != nil {
		return time.Time{}, storageErr("LastCancelledAt", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// CountRequestedSince counts every ride the rider created after since.
func (r *RideRepo) CountRequestedSince(ctx context.Context, riderID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM rides WHERE rider_id = $1 AND requested_at >= $2;`, riderID, since)
}

// CountCancelledSince counts the rider's rides cancelled after since.
func (r *RideRepo) CountCancelledSince(ctx context.Context, riderID uuid.UUID, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM rides WHERE rider_id = $1 AND status = 'cancelled' AND cancelled_at >= $2;`, riderID, since)
}

func (r *RideRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	q := TxorDB(ctx, r.db)

	var count int
	if err := q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}

// FindActive lists rides that are not in a terminal status, oldest first.
func (r *RideRepo) FindActive(ctx context.Context, limit int) ([]models.Ride, error) {
	q := TxorDB(ctx, r.db)

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE status NOT IN ($1, $2)
		ORDER BY requested_at ASC
		LIMIT $3;`

	rows, err := q.Query(ctx, query, types.StatusCompleted, types.StatusCancelled, limit)
	if err != nil {
		return nil, storageErr("FindActive", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

// CountByStatus returns ride totals grouped by status.
func (r *RideRepo) CountByStatus(ctx context.Context) (map[types.RideStatus]int, error) {
	q := TxorDB(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM rides GROUP BY status;`)
	if err != nil {
		return nil, storageErr("CountByStatus", err)
	}
	defer rows.Close()

	out := make(map[types.RideStatus]int)
	for rows.Next() {
		var (
			status types.RideStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storageErr("CountByStatus scan", err)
		}
		out[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("CountByStatus rows", err)
	}
	return out, nil
}
