package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"ridecore/internal/domain/types"
)

// storageErr wraps a driver failure for callers. Timeouts and
// connection-class failures map onto ErrRepositoryUnavailable so the HTTP
// layer can answer 503 instead of a generic 500.
func storageErr(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("ride repo: %s: %w: %s", op, types.ErrRepositoryUnavailable, err)
	}
	return fmt.Errorf("ride repo: %s: %w", op, err)
}

func isUnavailable(err error) bool {
	// pgconn.Timeout only sees timeouts the driver itself wrapped; a
	// deadline that expired before the query was sent needs its own check.
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions; 57P covers server shutdown
		// and crash recovery.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	return false
}
