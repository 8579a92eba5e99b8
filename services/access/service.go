// Package access serves the privacy-constrained view of a stream to token
// holders and stream owners.
package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/evaluator"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/services/schema"
	"go.uber.org/zap"
)

// TokenAuthorizer consumes one use of a token for a scope
type TokenAuthorizer interface {
	Authorize(ctx context.Context, secret string, scope models.TokenScope) (*models.Token, error)
}

// StreamTracker reads streams and counts accesses
type StreamTracker interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Stream, error)
	RecordAccess(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

// RuleChecker re-validates a stored rule against its dataset
type RuleChecker interface {
	Revalidate(ctx context.Context, ruleID uuid.UUID) (rules.ValidRule, *models.Dataset, error)
}

// RowSource returns the parsed source of a dataset
type RowSource interface {
	Rows(ctx context.Context, datasetID uuid.UUID) (*schema.Table, error)
}

// Result is one evaluation of a stream
type Result struct {
	Stream *models.Stream      `json:"stream"`
	Data   *models.ExposedRows `json:"data"`
}

// Service evaluates streams on behalf of their readers
type Service struct {
	tokens       TokenAuthorizer
	streams      StreamTracker
	rules        RuleChecker
	rows         RowSource
	evaluator    *evaluator.Evaluator
	audit        services.AuditRecorder
	previewLimit int
	logger       *zap.Logger
}

// NewService creates a new access Service
func NewService(
	tokens TokenAuthorizer,
	streams StreamTracker,
	rules RuleChecker,
	rows RowSource,
	eval *evaluator.Evaluator,
	audit services.AuditRecorder,
	previewLimit int,
	logger *zap.Logger,
) *Service {
	return &Service{
		tokens:       tokens,
		streams:      streams,
		rules:        rules,
		rows:         rows,
		evaluator:    eval,
		audit:        audit,
		previewLimit: previewLimit,
		logger:       logger,
	}
}

// Read redeems the token and returns at most limit rows of its stream.
// limit <= 0 returns everything.
func (s *Service) Read(ctx context.Context, secret string, limit int) (*Result, error) {
	token, err := s.tokens.Authorize(ctx, secret, models.ScopeRead)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluate(ctx, token.StreamID)
	if err != nil {
		return nil, err
	}
	if err := s.recordAccess(ctx, result, token, models.AuditStreamAccessed); err != nil {
		return nil, err
	}

	result.Data = result.Data.Limit(limit)
	return result, nil
}

// Preview evaluates an active stream for its owner. No token is consumed
// and the output is capped at the preview limit.
func (s *Service) Preview(ctx context.Context, streamID uuid.UUID) (*Result, error) {
	result, err := s.evaluate(ctx, streamID)
	if err != nil {
		return nil, err
	}
	result.Data = result.Data.Limit(s.previewLimit)
	return result, nil
}

// Export redeems an export-scoped token and renders the full stream
func (s *Service) Export(ctx context.Context, secret string, format Format) (*Document, error) {
	if !format.Valid() {
		return nil, services.NewValidationFailure(services.ValidationErrors{
			{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)},
		})
	}

	token, err := s.tokens.Authorize(ctx, secret, models.ScopeExport)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluate(ctx, token.StreamID)
	if err != nil {
		return nil, err
	}

	doc, err := render(result, format)
	if err != nil {
		return nil, services.WrapInternal("failed to render export", err)
	}
	if err := s.recordAccess(ctx, result, token, models.AuditStreamExported); err != nil {
		return nil, err
	}
	return doc, nil
}

// evaluate resolves stream, rule, dataset and rows, then applies the rule.
// Anything short of a complete, valid chain fails closed.
func (s *Service) evaluate(ctx context.Context, streamID uuid.UUID) (*Result, error) {
	stream, err := s.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !stream.IsActive() {
		return nil, services.NewDomainError(services.ErrorTypeStreamNotActive,
			fmt.Sprintf("stream is %s", stream.Status), nil).WithDetail("stream_id", stream.ID.String())
	}

	valid, dataset, err := s.rules.Revalidate(ctx, stream.RuleID)
	if err != nil {
		return nil, s.failed(ctx, stream, revalidationFailure(err))
	}

	table, err := s.rows.Rows(ctx, dataset.ID)
	if err != nil {
		return nil, s.failed(ctx, stream, err)
	}

	exposed, err := s.evaluator.Evaluate(ctx, dataset, table, valid.Rule())
	if err != nil {
		return nil, s.failed(ctx, stream, err)
	}
	return &Result{Stream: stream, Data: exposed}, nil
}

// revalidationFailure turns a rule that no longer fits its dataset into an
// EvaluationError. The reader holds a token, not the rule, so the field list
// only reaches the log.
func revalidationFailure(err error) error {
	errs, ok := services.AsValidationErrors(err)
	if !ok || !services.IsInvalidRuleError(err) {
		return err
	}
	if errs.HasField("dataset_id") {
		return services.NewEvaluationError("dataset is missing", errs)
	}
	return services.NewEvaluationError("rule no longer matches its dataset", errs)
}

func (s *Service) failed(ctx context.Context, stream *models.Stream, err error) error {
	if services.IsEvaluationError(err) || services.IsInvalidRuleError(err) || services.IsNotFoundError(err) {
		s.audit.Record(ctx, models.NewAuditEvent(models.AuditEvaluationFailed, models.ActorSystem,
			fmt.Sprintf("Evaluation of stream %s failed", stream.ID)).
			WithSeverity(models.SeverityWarning).
			WithResource(stream.ID).
			WithMeta("rule_id", stream.RuleID.String()).
			WithMeta("error", string(services.GetErrorType(err))))
	}
	s.logger.Warn("stream evaluation failed", zap.String("stream_id", stream.ID.String()), zap.Error(err))
	return err
}

func (s *Service) recordAccess(ctx context.Context, result *Result, token *models.Token, eventType models.AuditEventType) error {
	stream, err := s.streams.RecordAccess(ctx, result.Stream.ID)
	if err != nil {
		return err
	}
	result.Stream = stream

	s.audit.Record(ctx, models.NewAuditEvent(eventType, models.ActorApp, fmt.Sprintf("Stream %s read via token %s", stream.ID, token.Prefix)).
		WithResource(stream.ID).
		WithMeta("token_id", token.ID.String()).
		WithMeta("rows", len(result.Data.Rows)).
		WithMeta("suppressed", result.Data.Suppressed))

	s.logger.Info("stream accessed",
		zap.String("stream_id", stream.ID.String()),
		zap.String("event", string(eventType)),
		zap.Int("rows", len(result.Data.Rows)))
	return nil
}
