package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/models"
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return uuid.Nil
}
