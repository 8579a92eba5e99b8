package handlers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services/datasets"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// DatasetHandler handles dataset-related HTTP requests
type DatasetHandler struct {
	datasets *datasets.Service
	maxBytes int64
	logger   *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler. maxBytes bounds the request body.
func NewDatasetHandler(svc *datasets.Service, maxBytes int64, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: svc, maxBytes: maxBytes, logger: logger}
}

// HandleUpload handles POST /api/v1/datasets.
// Accepts multipart/form-data (field "file", optional "name") or a raw text/csv body
// named by ?name=.
func (h *DatasetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(r)

	// leave room for multipart framing; the service enforces the exact limit
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		name string
		src  io.Reader
	)
	switch mediaType {
	case "multipart/form-data":
		file, header, err := r.FormFile("file")
		if err != nil {
			h.logger.Warn("missing upload file",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteBadRequest(w, "multipart field \"file\" is required", nil)
			return
		}
		defer file.Close()

		name = r.FormValue("name")
		if strings.TrimSpace(name) == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		src = file
	case "text/csv", "text/plain", "application/octet-stream":
		name = r.URL.Query().Get("name")
		src = r.Body
	default:
		_ = utils.WriteError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or text/csv", nil)
		return
	}

	dataset, err := h.datasets.Upload(ctx, name, models.DatasetOriginUpload, src)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("dataset uploaded",
		zap.String("request_id", requestID),
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("content_hash", dataset.ContentHash))

	_ = utils.WriteCreated(w, dataset)
}

// HandleSample handles POST /api/v1/datasets/sample
func (h *DatasetHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.datasets.Sample(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, dataset)
}

// HandleList handles GET /api/v1/datasets
func (h *DatasetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.datasets.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/v1/datasets/{id}
func (h *DatasetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "dataset id")
	if !ok {
		return
	}
	dataset, err := h.datasets.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, dataset)
}

// HandleDelete handles DELETE /api/v1/datasets/{id}
func (h *DatasetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "dataset id")
	if !ok {
		return
	}
	if err := h.datasets.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("dataset deleted",
		zap.String("request_id", getRequestID(r)),
		zap.String("dataset_id", id.String()))

	utils.WriteNoContent(w)
}
