package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxOwnerID     contextKey = "owner_id"
	ctxCartSession contextKey = "cart_session"
)

// OwnerIDFromContext returns the authenticated restaurant owner, if any.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxOwnerID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// CartSessionFromContext returns the X-Cart-Session value validated by CartSession.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}

// WithOwnerID injects the owner identifier into the context.
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOwnerID, ownerID)
}

// WithCartSession injects the cart session into the context.
func WithCartSession(ctx context.Context, session string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSession, session)
}
