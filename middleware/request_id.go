package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// PropagateRequestID copies chi's request id into the shared context key
// read by services and loggers. Mount it after chimw.RequestID.
func PropagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
