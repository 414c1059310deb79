package models

import (
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/types"
)

// Event is a realtime notification payload. The set of implementations is
// closed: one variant per event name, so the transport cannot drop or
// mistype fields.
type Event interface {
	EventName() types.RideEvent
}

// NewRideRequestEvent is broadcast to connected drivers when a rider
// requests a ride.
type NewRideRequestEvent struct {
	RideID         uuid.UUID          `json:"ride_id"`
	RiderID        uuid.UUID          `json:"rider_id"`
	PickupAddress  string             `json:"pickup_address"`
	DropoffAddress string             `json:"dropoff_address"`
	PickupCoord    Coordinate         `json:"pickup_coord"`
	DropoffCoord   Coordinate         `json:"dropoff_coord"`
	BaseFare       float64            `json:"base_fare"`
	VehicleClass   types.VehicleClass `json:"vehicle_class"`
	RequestedAt    time.Time          `json:"requested_at"`
}

func (NewRideRequestEvent) EventName() types.RideEvent { return types.EventNewRideRequest }

// RideStatusUpdatedEvent is broadcast on every committed status transition.
// Only the timestamp produced by the transition is set.
type RideStatusUpdatedEvent struct {
	RideID      uuid.UUID        `json:"ride_id"`
	Status      types.RideStatus `json:"status"`
	DriverID    *uuid.UUID       `json:"driver_id,omitempty"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
	FinalFare   *float64         `json:"final_fare,omitempty"`
}

func (RideStatusUpdatedEvent) EventName() types.RideEvent { return types.EventRideStatusUpdated }

// RideAcceptedEvent is directed to the ride's rider when a driver accepts.
// RiderID is the delivery address: consumers on other service instances need
// it to route the event to the right session.
type RideAcceptedEvent struct {
	RideID     uuid.UUID `json:"ride_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

func (RideAcceptedEvent) EventName() types.RideEvent { return types.EventRideAccepted }
