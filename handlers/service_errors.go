package handlers

import (
	"net/http"

	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	status := http.StatusInternalServerError

	switch {
	case services.IsTokenExpiredError(err), services.IsTokenRevokedError(err), services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
	case services.IsTokenExhaustedError(err):
		status = http.StatusGone
	case services.IsStreamNotActiveError(err), services.IsConflictError(err):
		status = http.StatusConflict
	case services.IsParseError(err):
		status = http.StatusBadRequest
	case services.IsInvalidRuleError(err), services.IsValidationError(err):
		status = http.StatusUnprocessableEntity
	case services.IsForbiddenError(err):
		status = http.StatusForbidden
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
	case services.IsEvaluationError(err), services.IsInternalError(err):
		logger.Error("internal server error",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	default:
		logger.Error("unhandled error type", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteError(w, status, err.Error(), details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}

	logger.Debug("handled service error",
		zap.String("type", string(services.GetErrorType(err))),
		zap.Int("status", status))
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteUnprocessable(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
