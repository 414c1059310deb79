package dto

import (
	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
)

// CreateRideRequest is the rider's ride request payload.
type CreateRideRequest struct {
	PickupAddress  string            `json:"pickup_address"`
	DropoffAddress string            `json:"dropoff_address"`
	PickupCoord    models.Coordinate `json:"pickup_coord"`
	DropoffCoord   models.Coordinate `json:"dropoff_coord"`
	BaseFare       float64           `json:"base_fare"`
	VehicleClass   string            `json:"vehicle_class"`
}

// Validate collects field errors; an empty map means the payload is usable.
func (r *CreateRideRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if r.PickupAddress == "" {
		errs["pickup_address"] = "must be provided"
	}
	if r.DropoffAddress == "" {
		errs["dropoff_address"] = "must be provided"
	}
	if r.PickupCoord.Latitude < -90 || r.PickupCoord.Latitude > 90 ||
		r.PickupCoord.Longitude < -180 || r.PickupCoord.Longitude > 180 {
		errs["pickup_coord"] = "out of range"
	}
	if r.DropoffCoord.Latitude < -90 || r.DropoffCoord.Latitude > 90 ||
		r.DropoffCoord.Longitude < -180 || r.DropoffCoord.Longitude > 180 {
		errs["dropoff_coord"] = "out of range"
	}
	if r.BaseFare <= 0 {
		errs["base_fare"] = "must be positive"
	}

	return errs
}

func (r *CreateRideRequest) ToDraft(riderID uuid.UUID) *models.RideDraft {
	return &models.RideDraft{
		RiderID:        riderID,
		PickupAddress:  r.PickupAddress,
		DropoffAddress: r.DropoffAddress,
		PickupCoord:    r.PickupCoord,
		DropoffCoord:   r.DropoffCoord,
		BaseFare:       r.BaseFare,
		VehicleClass:   types.VehicleClass(r.VehicleClass),
	}
}

// CompleteRideRequest optionally overrides the fare charged on completion.
type CompleteRideRequest struct {
	ActualFare *float64 `json:"actual_fare"`
}

func (r *CompleteRideRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.ActualFare != nil && *r.ActualFare <= 0 {
		errs["actual_fare"] = "must be positive"
	}
	return errs
}
