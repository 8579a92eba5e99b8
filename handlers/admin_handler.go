package handlers

import (
	"context"
	"net/http"

	"github.com/upb/dataguardian/services/cleanup"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// CleanupRunner runs one cleanup sweep
type CleanupRunner interface {
	Run(ctx context.Context) (*cleanup.Report, error)
}

// AdminHandler handles administrative requests
type AdminHandler struct {
	sweeper CleanupRunner
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sweeper CleanupRunner, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, logger: logger}
}

// HandleCleanup handles POST /api/v1/admin/cleanup
func (h *AdminHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Run(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("cleanup run on request",
		zap.String("request_id", getRequestID(r)),
		zap.Int("expired_streams", report.ExpiredStreams),
		zap.Int("revoked_tokens", report.RevokedTokens),
		zap.Int("purged_sources", report.PurgedSources))

	_ = utils.WriteOK(w, report)
}
