package handler

import (
	"context"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/internal/notify"
)

// RideService is the lifecycle surface the HTTP handlers call into.
type RideService interface {
	Create(ctx context.Context, draft *models.RideDraft) (*models.Ride, error)
	Cancel(ctx context.Context, rideID, actingPartyID uuid.UUID, role types.UserRole) (*models.Ride, error)
	Accept(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error)
	Start(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error)
	Complete(ctx context.Context, rideID, driverID uuid.UUID, actualFare *float64) (*models.Ride, error)
	CalculateFare(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	Get(ctx context.Context, rideID uuid.UUID, caller *models.User) (*models.Ride, error)
	History(ctx context.Context, userID uuid.UUID, filter models.HistoryFilter) ([]models.Ride, error)
	AvailableRides(ctx context.Context, limit int) ([]models.Ride, error)
}

// RideStats is the slice of the repository the admin endpoints read.
type RideStats interface {
	CountByStatus(ctx context.Context) (map[types.RideStatus]int, error)
	FindActive(ctx context.Context, limit int) ([]models.Ride, error)
}

// PartyRegistry exposes the live notification registrations.
type PartyRegistry interface {
	Parties() []notify.Party
	Count() int
}
