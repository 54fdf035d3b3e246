// Package ctxutil carries per-request identity through context.Context.
package ctxutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/auth"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	requestIDKey contextKey = "request_id"
)

// WithClaims returns a context carrying verified JWT claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Claims extracts verified claims from the context, if present.
func Claims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// OrgID returns the authenticated org ID, or uuid.Nil when unauthenticated.
func OrgID(ctx context.Context) uuid.UUID {
	if c, ok := Claims(ctx); ok {
		return c.OrgID
	}
	return uuid.Nil
}

// AccountID returns the authenticated account ID, or "" when unauthenticated.
func AccountID(ctx context.Context) string {
	if c, ok := Claims(ctx); ok {
		return c.AccountID
	}
	return ""
}

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request correlation ID, or "" if absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
