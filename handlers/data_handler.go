package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/upb/dataguardian/middleware"
	"github.com/upb/dataguardian/services/access"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// DataHandler serves stream data to token holders
type DataHandler struct {
	access *access.Service
	logger *zap.Logger
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(svc *access.Service, logger *zap.Logger) *DataHandler {
	return &DataHandler{access: svc, logger: logger}
}

// HandleData handles GET /data.
// Without ?format the evaluation is returned as a JSON envelope (read scope, honours ?limit).
// ?format=json|csv returns a downloadable export (export scope).
func (h *DataHandler) HandleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secret := middleware.GetStreamSecretFromContext(ctx)
	if secret == "" {
		_ = utils.WriteUnauthorized(w, "Missing stream token")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		result, err := h.access.Read(ctx, secret, limit)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		_ = utils.WriteOK(w, result)
		return
	}

	doc, err := h.access.Export(ctx, secret, access.Format(format))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		h.logger.Warn("failed to write export",
			zap.String("request_id", getRequestID(r)),
			zap.Error(err))
	}
}
