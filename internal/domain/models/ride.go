package models

import (
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/types"
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Ride is the central entity. It is created once with status "requested",
// mutated only through validated transitions and never deleted: completed and
// cancelled rides stay around for history and fraud checks.
type Ride struct {
	ID       uuid.UUID  `json:"id"`
	RiderID  uuid.UUID  `json:"rider_id"`
	DriverID *uuid.UUID `json:"driver_id,omitempty"` // nil until the ride is accepted

	Status       types.RideStatus   `json:"status"`
	VehicleClass types.VehicleClass `json:"vehicle_class"`

	PickupAddress  string     `json:"pickup_address"`
	DropoffAddress string     `json:"dropoff_address"`
	PickupCoord    Coordinate `json:"pickup_coord"`
	DropoffCoord   Coordinate `json:"dropoff_coord"`

	BaseFare  float64  `json:"base_fare"`
	FinalFare *float64 `json:"final_fare,omitempty"` // nil until calculated

	CancellationFeeApplied bool `json:"cancellation_fee_applied"`

	// Each timestamp is set at most once, by the transition that produces it.
	RequestedAt time.Time  `json:"requested_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Active reports whether the ride still occupies its rider and driver.
func (r *Ride) Active() bool {
	return !r.Status.Terminal()
}

// RideDraft carries the validated input of a ride request.
type RideDraft struct {
	RiderID        uuid.UUID
	PickupAddress  string
	DropoffAddress string
	PickupCoord    Coordinate
	DropoffCoord   Coordinate
	BaseFare       float64
	VehicleClass   types.VehicleClass
}

// RidePatch is the set of fields a status transition may change. Nil fields
// are left untouched by the repository.
type RidePatch struct {
	Status                 types.RideStatus
	DriverID               *uuid.UUID
	FinalFare              *float64
	CancellationFeeApplied *bool
	AcceptedAt             *time.Time
	StartedAt              *time.Time
	CompletedAt            *time.Time
	CancelledAt            *time.Time
}

// HistoryFilter narrows a party's ride history listing.
type HistoryFilter struct {
	Status types.RideStatus // empty matches all
	Limit  int
	Offset int
}
