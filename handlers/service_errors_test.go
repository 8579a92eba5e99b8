package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"token expired", services.ErrTokenExpired, http.StatusUnauthorized, "unauthorized"},
		{"token revoked", services.ErrTokenRevoked, http.StatusUnauthorized, "unauthorized"},
		{"token exhausted", services.ErrTokenExhausted, http.StatusGone, "gone"},
		{"stream not active", services.ErrStreamNotActive, http.StatusConflict, "conflict"},
		{"parse", services.NewParseError("wrong number of fields", 3, nil), http.StatusBadRequest, "bad_request"},
		{"invalid rule", services.NewInvalidRuleError(services.ValidationErrors{{Field: "fields[0]", Reason: "unknown column"}}), http.StatusUnprocessableEntity, "unprocessable"},
		{"validation", services.NewValidationFailure(services.ValidationErrors{{Field: "name", Reason: "required"}}), http.StatusUnprocessableEntity, "unprocessable"},
		{"forbidden", services.NewDomainError(services.ErrorTypeForbidden, "token lacks export scope", nil), http.StatusForbidden, "forbidden"},
		{"not found", services.NewNotFoundError("stream", uuid.New()), http.StatusNotFound, "not_found"},
		{"conflict", services.NewDomainError(services.ErrorTypeConflict, "duplicate", nil), http.StatusConflict, "conflict"},
		{"evaluation", services.NewEvaluationError("missing column", nil), http.StatusInternalServerError, "internal_error"},
		{"internal", services.WrapInternal("disk", errors.New("full")), http.StatusInternalServerError, "internal_error"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		{"wrapped domain error", fmt.Errorf("failed to redeem: %w", services.ErrTokenExhausted), http.StatusGone, "gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedError, resp.Error)
		})
	}

	t.Run("internal errors hide the cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.WrapInternal("db", errors.New("password=hunter2")), logger)
		assert.NotContains(t, w.Body.String(), "hunter2")
	})

	t.Run("details are forwarded", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeConflict, "duplicate", nil).
			WithDetail("existing_id", "abc"), logger)

		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "abc", resp.Details["existing_id"])
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Empty(t, w.Body.String())
	})
}

func TestHandleValidationError(t *testing.T) {
	type req struct {
		Name string `json:"name" validate:"required"`
	}

	w := httptest.NewRecorder()
	HandleValidationError(w, utils.ValidateStruct(req{}), zap.NewNop())

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "name is required", resp.Details["name"])

	w = httptest.NewRecorder()
	HandleValidationError(w, errors.New("request body is empty"), zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
