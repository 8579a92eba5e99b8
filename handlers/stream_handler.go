package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/access"
	"github.com/upb/dataguardian/services/receipts"
	"github.com/upb/dataguardian/services/streams"
	"github.com/upb/dataguardian/services/tokens"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// StreamHandler handles stream, token issuance and receipt requests
type StreamHandler struct {
	streams  *streams.Service
	tokens   *tokens.Service
	access   *access.Service
	receipts *receipts.Service
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(
	streamSvc *streams.Service,
	tokenSvc *tokens.Service,
	accessSvc *access.Service,
	receiptSvc *receipts.Service,
	logger *zap.Logger,
) *StreamHandler {
	return &StreamHandler{
		streams:  streamSvc,
		tokens:   tokenSvc,
		access:   accessSvc,
		receipts: receiptSvc,
		logger:   logger,
	}
}

// HandleCreate handles POST /api/v1/streams
func (h *StreamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in streams.CreateInput
	if !decodeBody(w, r, &in, false, h.logger) {
		return
	}

	stream, err := h.streams.Create(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("stream created",
		zap.String("request_id", getRequestID(r)),
		zap.String("stream_id", stream.ID.String()),
		zap.Time("expires_at", stream.ExpiresAt))

	_ = utils.WriteCreated(w, stream)
}

// HandleList handles GET /api/v1/streams
func (h *StreamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.streams.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/v1/streams/{id}
func (h *StreamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	stream, err := h.streams.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stream)
}

// HandleRevoke handles POST /api/v1/streams/{id}/revoke
func (h *StreamHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	stream, err := h.streams.Revoke(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("stream revoked",
		zap.String("request_id", getRequestID(r)),
		zap.String("stream_id", id.String()))

	_ = utils.WriteOK(w, stream)
}

// HandlePreview handles GET /api/v1/streams/{id}/preview
func (h *StreamHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	result, err := h.access.Preview(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, result)
}

// HandleReceipt handles GET /api/v1/streams/{id}/receipt.
// ?format=html, or an Accept header preferring text/html, renders a printable page.
func (h *StreamHandler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	format := receiptFormat(r)
	if format != "json" && format != "html" && format != "pdf" {
		_ = utils.WriteBadRequest(w, "format must be one of json, html, pdf", nil)
		return
	}

	receipt, err := h.receipts.Generate(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	switch format {
	case "json":
		_ = utils.WriteOK(w, receipt)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := receipts.WriteHTML(w, receipt); err != nil {
			h.logger.Error("failed to render receipt",
				zap.String("request_id", getRequestID(r)),
				zap.Error(err))
		}
	case "pdf":
		// rendered in memory so a failure can still become a 500
		var buf bytes.Buffer
		if err := receipts.WritePDF(&buf, receipt); err != nil {
			HandleServiceError(w, services.WrapInternal("failed to render receipt", err), h.logger)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, id))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

// receiptFormat picks the representation from ?format, then the Accept header
func receiptFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	accept := r.Header.Get("Accept")
	switch {
	case strings.HasPrefix(accept, "text/html"):
		return "html"
	case strings.HasPrefix(accept, "application/pdf"):
		return "pdf"
	}
	return "json"
}

// HandleIssueToken handles POST /api/v1/streams/{id}/tokens. The response is
// the only place the secret ever appears.
func (h *StreamHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	var in tokens.IssueInput
	if !decodeBody(w, r, &in, true, h.logger) {
		return
	}
	in.StreamID = id

	token, err := h.tokens.Issue(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("token issued",
		zap.String("request_id", getRequestID(r)),
		zap.String("stream_id", id.String()),
		zap.String("token", tokens.Mask(token.Prefix)))

	w.Header().Set("Cache-Control", "no-store")
	_ = utils.WriteCreated(w, token)
}

// HandleListTokens handles GET /api/v1/streams/{id}/tokens
func (h *StreamHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stream id")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.streams.Get(ctx, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	list, err := h.tokens.ListByStream(ctx, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	out := make([]*models.Token, len(list))
	for i, t := range list {
		out[i] = t.Redacted()
	}
	_ = utils.WriteOK(w, out)
}
