package middleware

import (
	"net/http"

	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// StreamTokenMiddleware admits third-party readers that present a stream token.
// It only extracts the secret; redemption happens in the access service so that
// the check and the use are one step.
type StreamTokenMiddleware struct {
	logger *zap.Logger
}

// NewStreamTokenMiddleware creates a new StreamTokenMiddleware
func NewStreamTokenMiddleware(logger *zap.Logger) *StreamTokenMiddleware {
	return &StreamTokenMiddleware{logger: logger}
}

// RequireStreamToken rejects requests without a bearer secret and stores it in context.
// The secret is never accepted from the query string.
func (m *StreamTokenMiddleware) RequireStreamToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		secret := extractBearerToken(r)
		if secret == "" {
			m.logger.Warn("missing stream token",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("remote_addr", r.RemoteAddr))
			w.Header().Set("WWW-Authenticate", `Bearer realm="data"`)
			_ = utils.WriteUnauthorized(w, "Missing stream token")
			return
		}

		ctx = WithStreamSecret(ctx, secret)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
