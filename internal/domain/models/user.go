package models

import (
	"context"

	"github.com/google/uuid"

	"ridecore/internal/domain/types"
)

// User is the authenticated principal attached to a request.
type User struct {
	ID   uuid.UUID
	Role types.UserRole
}

func AnonymousUser() *User {
	return &User{}
}

func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == uuid.Nil
}

type userCtxKey struct{}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(userCtxKey{}).(*User); ok {
		return u
	}
	return nil
}
