package handlers

import (
	"net/http"

	"github.com/upb/dataguardian/middleware"
)

func getRequestID(r *http.Request) string {
	return middleware.GetRequestIDFromContext(r.Context())
}
