package handlers

import (
	"context"
	"net/http"

	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// AuditReader lists retained audit events, newest first
type AuditReader interface {
	List(ctx context.Context, limit int) ([]*models.AuditEvent, error)
	ForResource(ctx context.Context, id string) ([]*models.AuditEvent, error)
}

const defaultAuditLimit = 100

// AuditHandler handles audit trail requests
type AuditHandler struct {
	audit  AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// HandleList handles GET /api/v1/audit?limit=&resource_id=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var events []*models.AuditEvent
	if resource := r.URL.Query().Get("resource_id"); resource != "" {
		events, err = h.audit.ForResource(ctx, resource)
		if err == nil && limit > 0 && len(events) > limit {
			events = events[:limit]
		}
	} else {
		events, err = h.audit.List(ctx, limit)
	}
	if err != nil {
		h.logger.Error("failed to list audit events",
			zap.String("request_id", getRequestID(r)),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve audit events")
		return
	}

	_ = utils.WriteOK(w, events)
}
