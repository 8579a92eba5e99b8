package handlers

import (
	"net/http"

	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/utils"
	"go.uber.org/zap"
)

// ValidateRuleResponse is the result of a dry-run validation
type ValidateRuleResponse struct {
	Valid  bool                      `json:"valid"`
	Errors services.ValidationErrors `json:"errors"`
}

// RuleHandler handles rule-related HTTP requests
type RuleHandler struct {
	rules  *rules.Service
	logger *zap.Logger
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(svc *rules.Service, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{rules: svc, logger: logger}
}

// HandleCreate handles POST /api/v1/rules
func (h *RuleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in rules.Input
	if !decodeBody(w, r, &in, false, h.logger) {
		return
	}

	rule, err := h.rules.Create(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule created",
		zap.String("request_id", getRequestID(r)),
		zap.String("rule_id", rule.ID.String()),
		zap.String("dataset_id", rule.DatasetID.String()))

	_ = utils.WriteCreated(w, rule)
}

// HandleValidate handles POST /api/v1/rules/validate. Nothing is persisted.
func (h *RuleHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var in rules.Input
	if !decodeBody(w, r, &in, false, h.logger) {
		return
	}

	errs, err := h.rules.Validate(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if errs == nil {
		errs = services.ValidationErrors{}
	}
	_ = utils.WriteOK(w, ValidateRuleResponse{Valid: len(errs) == 0, Errors: errs})
}

// HandleList handles GET /api/v1/rules, optionally filtered by ?dataset_id=
func (h *RuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if raw := r.URL.Query().Get("dataset_id"); raw != "" {
		datasetID, err := utils.ParseUUID(raw, "dataset_id")
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		list, err := h.rules.ListByDataset(ctx, datasetID)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		_ = utils.WriteOK(w, list)
		return
	}

	list, err := h.rules.List(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/v1/rules/{id}
func (h *RuleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "rule id")
	if !ok {
		return
	}
	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleUpdate handles PUT /api/v1/rules/{id}
func (h *RuleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "rule id")
	if !ok {
		return
	}
	var in rules.Input
	if !decodeBody(w, r, &in, false, h.logger) {
		return
	}

	rule, err := h.rules.Update(r.Context(), id, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleDelete handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "rule id")
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
