package models

import (
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/types"
)

// FraudFlag is an advisory signal. It is logged, never stored here and never
// blocks the operation that produced it.
type FraudFlag struct {
	SubjectID   uuid.UUID
	Reason      string
	Severity    types.FlagSeverity
	EvaluatedAt time.Time
}
