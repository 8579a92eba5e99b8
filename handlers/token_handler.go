package handlers

import (
	"net/http"

	"github.com/upb/dataguardian/services/tokens"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// TokenHandler handles token-related HTTP requests
type TokenHandler struct {
	tokens *tokens.Service
	logger *zap.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(svc *tokens.Service, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: svc, logger: logger}
}

// HandleRevoke handles POST /api/v1/tokens/{id}/revoke
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "token id")
	if !ok {
		return
	}
	token, err := h.tokens.Revoke(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, token.Redacted())
}
