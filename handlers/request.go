package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// pathID parses the {id} URL parameter, writing a 400 on failure
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), name)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes and validates a JSON body. optional bodies may be empty.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool, logger *zap.Logger) bool {
	requestID := getRequestID(r)

	if optional && (r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0) {
		return validateBody(w, v, requestID, logger)
	}

	if err := utils.DecodeJSON(r.Body, v); err != nil {
		logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}
	return validateBody(w, v, requestID, logger)
}

func validateBody(w http.ResponseWriter, v interface{}, requestID string, logger *zap.Logger) bool {
	if err := utils.ValidateStruct(v); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
