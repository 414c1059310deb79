package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"ridecore/internal/domain/types"
)

func TestStorageErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"context deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"connection does not exist", &pgconn.PgError{Code: "08003"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"crash recovery", &pgconn.PgError{Code: "57P02"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"no rows", pgx.ErrNoRows, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := storageErr("Get", tt.err)
			if tt.unavailable {
				assert.ErrorIs(t, wrapped, types.ErrRepositoryUnavailable)
			} else {
				assert.NotErrorIs(t, wrapped, types.ErrRepositoryUnavailable)
				assert.ErrorIs(t, wrapped, tt.err)
			}
		})
	}
}
