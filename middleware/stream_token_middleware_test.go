package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequireStreamToken(t *testing.T) {
	mw := NewStreamTokenMiddleware(zap.NewNop())

	t.Run("bearer secret is stored in context", func(t *testing.T) {
		var got string
		handler := mw.RequireStreamToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetStreamSecretFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Authorization", "Bearer dg_abc123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "dg_abc123", got)
	})

	t.Run("query string secret is ignored", func(t *testing.T) {
		handler := mw.RequireStreamToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data?token=dg_abc123", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer realm="data"`, w.Header().Get("WWW-Authenticate"))
	})
}

func TestPropagateRequestID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, PropagateRequestID)

	var got string
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", got)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
