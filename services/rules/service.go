package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/internal/keylock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"github.com/upb/dataguardian/services"
	"go.uber.org/zap"
)

// Input is the caller-supplied part of a rule
type Input struct {
	Name         string               `json:"name" validate:"required,max=200"`
	DatasetID    uuid.UUID            `json:"dataset_id" validate:"required"`
	Fields       []string             `json:"fields"`
	Filters      []models.Filter      `json:"filters"`
	Aggregations []models.Aggregation `json:"aggregations"`
	Obfuscation  *models.Obfuscation  `json:"obfuscation"`
	TTLMinutes   int                  `json:"ttl_minutes"`
	Tags         []string             `json:"tags"`
}

func (in Input) apply(rule *models.Rule) {
	rule.Name = in.Name
	rule.DatasetID = in.DatasetID
	rule.Fields = in.Fields
	rule.Filters = in.Filters
	rule.Aggregations = in.Aggregations
	rule.Obfuscation = in.Obfuscation
	rule.TTLMinutes = in.TTLMinutes
	rule.Tags = in.Tags
	if rule.Fields == nil {
		rule.Fields = []string{}
	}
	if rule.Filters == nil {
		rule.Filters = []models.Filter{}
	}
	if rule.Tags == nil {
		rule.Tags = []string{}
	}
}

// Service manages rule records
type Service struct {
	rules     repositories.RuleRepository
	datasets  repositories.DatasetRepository
	validator *Validator
	cache     *RuleCache
	audit     services.AuditRecorder
	locks     *keylock.Locker
	clock     clock.Clock
	logger    *zap.Logger
}

// NewService creates a new rule Service
func NewService(
	rules repositories.RuleRepository,
	datasets repositories.DatasetRepository,
	validator *Validator,
	cache *RuleCache,
	audit services.AuditRecorder,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		rules:     rules,
		datasets:  datasets,
		validator: validator,
		cache:     cache,
		audit:     audit,
		locks:     keylock.New(0),
		clock:     clk,
		logger:    logger,
	}
}

func (s *Service) dataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	dataset, err := s.datasets.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("dataset", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return dataset, nil
}

// Create validates and persists a new rule
func (s *Service) Create(ctx context.Context, in Input) (*models.Rule, error) {
	dataset, err := s.dataset(ctx, in.DatasetID)
	if err != nil {
		return nil, err
	}

	rule := models.NewRule(in.Name, in.DatasetID, in.Fields, in.TTLMinutes, s.clock.Now())
	in.apply(rule)

	if _, errs := s.validator.Validate(rule, dataset); len(errs) > 0 {
		return nil, services.NewValidationFailure(errs)
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.cache.Set(rule)

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditRuleCreated, "", fmt.Sprintf("Rule %s created", rule.ID)).
		WithResource(rule.ID).
		WithMeta("dataset_id", dataset.ID.String()))

	s.logger.Info("rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("dataset_id", dataset.ID.String()))

	return rule, nil
}

// Get retrieves a rule, cache first
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	if rule, ok := s.cache.Get(id); ok {
		s.logger.Debug("cache hit for rule", zap.String("rule_id", id.String()))
		return rule, nil
	}

	rule, err := s.rules.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	s.cache.Set(rule)
	s.logger.Debug("cache miss for rule, fetched from store", zap.String("rule_id", id.String()))

	return rule, nil
}

// List retrieves all rules, newest first
func (s *Service) List(ctx context.Context) ([]*models.Rule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListByDataset retrieves the rules referencing a dataset
func (s *Service) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Rule, error) {
	rules, err := s.rules.GetByDatasetID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for dataset: %w", err)
	}
	return rules, nil
}

// Update re-validates and replaces the mutable parts of a rule
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*models.Rule, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	current, err := s.rules.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	dataset, err := s.dataset(ctx, in.DatasetID)
	if err != nil {
		return nil, err
	}

	updated := *current
	in.apply(&updated)
	updated.UpdatedAt = s.clock.Now()

	if _, errs := s.validator.Validate(&updated, dataset); len(errs) > 0 {
		return nil, services.NewValidationFailure(errs)
	}

	if err := s.rules.Update(ctx, &updated); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewNotFoundError("rule", id)
		}
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	s.cache.Invalidate(id)

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditRuleUpdated, "", fmt.Sprintf("Rule %s updated", id)).
		WithResource(id).
		WithMeta("dataset_id", dataset.ID.String()))

	s.logger.Info("rule updated", zap.String("rule_id", id.String()))

	return &updated, nil
}

// Delete removes a rule. Streams bound to it fail closed on their next read.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	if err := s.rules.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewNotFoundError("rule", id)
		}
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	s.cache.Invalidate(id)

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditRuleDeleted, "", fmt.Sprintf("Rule %s deleted", id)).
		WithResource(id))

	s.logger.Info("rule deleted", zap.String("rule_id", id.String()))

	return nil
}

// Validate checks in without persisting it. The returned list is empty for a valid rule.
func (s *Service) Validate(ctx context.Context, in Input) (services.ValidationErrors, error) {
	dataset, err := s.dataset(ctx, in.DatasetID)
	if err != nil {
		return nil, err
	}

	rule := &models.Rule{}
	in.apply(rule)

	_, errs := s.validator.Validate(rule, dataset)
	return errs, nil
}

// Revalidate loads a stored rule and checks it against the current state of its dataset.
// A rule whose dataset is gone fails with InvalidRuleError; the access path reports that as an EvaluationError.
func (s *Service) Revalidate(ctx context.Context, id uuid.UUID) (ValidRule, *models.Dataset, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return ValidRule{}, nil, err
	}

	dataset, err := s.datasets.GetByID(ctx, rule.DatasetID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return ValidRule{}, nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	valid, errs := s.validator.Validate(rule, dataset)
	if len(errs) > 0 {
		return ValidRule{}, nil, services.NewInvalidRuleError(errs)
	}
	return valid, dataset, nil
}

// CacheStats returns rule cache statistics
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}
