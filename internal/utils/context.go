package utils

import (
	"context"
	"time"
)

type contextKey string

const ContextUserIDKey contextKey = "userID"

// SessionData is what the session middleware needs from the auth store.
type SessionData struct {
	UserID    string
	ExpiresAt time.Time
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserIDKey, userID)
}
