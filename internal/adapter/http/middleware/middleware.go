package middleware

import (
	"ridecore/internal/domain/models"
	"ridecore/pkg/logger"
)

type (
	// TokenVerifier checks a bearer token and resolves the user it names.
	TokenVerifier interface {
		Verify(token string) (*models.User, error)
	}

	Middleware struct {
		verifier TokenVerifier
		log      logger.Logger
	}
)

func NewMiddleware(verifier TokenVerifier, log logger.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		log:      log,
	}
}
