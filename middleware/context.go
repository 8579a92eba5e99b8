package middleware

import (
	"context"

	"github.com/upb/dataguardian/internal/auth"
	"github.com/upb/dataguardian/internal/shared"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for actor claims
	ClaimsKey contextKey = "claims"

	// StreamSecretKey is the context key for the presented stream token
	StreamSecretKey contextKey = "stream_secret"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return shared.RequestID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return shared.WithRequestID(ctx, requestID)
}

// GetClaimsFromContext retrieves actor claims from context
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims
}

// WithClaims adds actor claims to the context and makes their role the audit actor
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return shared.WithActor(ctx, string(claims.Role))
}

// GetStreamSecretFromContext retrieves the stream token secret from context
func GetStreamSecretFromContext(ctx context.Context) string {
	secret, _ := ctx.Value(StreamSecretKey).(string)
	return secret
}

// WithStreamSecret adds a stream token secret to the context
func WithStreamSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, StreamSecretKey, secret)
}
