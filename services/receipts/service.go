// Package receipts assembles consent receipts: a point-in-time account of
// what a stream exposes, to whom, and what has happened to it.
package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/tokens"
	"go.uber.org/zap"
)

// StreamReader returns a stream with its observed status
type StreamReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

// RuleReader returns stored rules
type RuleReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Rule, error)
}

// DatasetReader returns stored datasets
type DatasetReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
}

// TokenLister lists the tokens of a stream
type TokenLister interface {
	ListByStream(ctx context.Context, streamID uuid.UUID) ([]*models.Token, error)
}

// EventSource returns retained audit events about an entity
type EventSource interface {
	ForResource(ctx context.Context, id string) ([]*models.AuditEvent, error)
}

// DatasetRef identifies the source a stream draws from
type DatasetRef struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
}

// RuleSummary is what the rule lets a reader see
type RuleSummary struct {
	ID           uuid.UUID            `json:"id"`
	Name         string               `json:"name"`
	Fields       []string             `json:"fields"`
	Filters      []models.Filter      `json:"filters"`
	Aggregations []models.Aggregation `json:"aggregations,omitempty"`
	Obfuscation  *models.Obfuscation  `json:"obfuscation,omitempty"`
	TTLMinutes   int                  `json:"ttl_minutes"`
}

// TokenSummary describes a token without its secret
type TokenSummary struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name,omitempty"`
	Token       string              `json:"token"`
	Scope       []models.TokenScope `json:"scope"`
	ExpiresAt   time.Time           `json:"expires_at"`
	OneTime     bool                `json:"one_time"`
	Revoked     bool                `json:"revoked"`
	AccessCount int64               `json:"access_count"`
}

// Receipt is a consent receipt for one stream.
// Dataset and Rule are nil when the referenced record no longer exists.
type Receipt struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Stream      *models.Stream       `json:"stream"`
	Dataset     *DatasetRef          `json:"dataset"`
	Rule        *RuleSummary         `json:"rule"`
	Tokens      []TokenSummary       `json:"tokens"`
	Events      []*models.AuditEvent `json:"events"`
}

// Service generates consent receipts
type Service struct {
	streams  StreamReader
	rules    RuleReader
	datasets DatasetReader
	tokens   TokenLister
	events   EventSource
	audit    services.AuditRecorder
	clock    clock.Clock
	logger   *zap.Logger
}

// NewService creates a new receipt Service
func NewService(
	streams StreamReader,
	rules RuleReader,
	datasets DatasetReader,
	tokens TokenLister,
	events EventSource,
	audit services.AuditRecorder,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		streams:  streams,
		rules:    rules,
		datasets: datasets,
		tokens:   tokens,
		events:   events,
		audit:    audit,
		clock:    clk,
		logger:   logger,
	}
}

// Generate builds the receipt for a stream. The generation itself is audited
// after the events are collected, so a receipt never lists itself.
func (s *Service) Generate(ctx context.Context, streamID uuid.UUID) (*Receipt, error) {
	stream, err := s.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{GeneratedAt: s.clock.Now(), Stream: stream}

	rule, err := s.rules.Get(ctx, stream.RuleID)
	switch {
	case err == nil:
		receipt.Rule = summarize(rule)
		dataset, err := s.datasets.Get(ctx, rule.DatasetID)
		if err == nil {
			receipt.Dataset = &DatasetRef{ID: dataset.ID, Name: dataset.Name, ContentHash: dataset.ContentHash}
		} else if !services.IsNotFoundError(err) {
			return nil, err
		}
	case !services.IsNotFoundError(err):
		return nil, err
	}

	list, err := s.tokens.ListByStream(ctx, stream.ID)
	if err != nil {
		return nil, err
	}
	receipt.Tokens = lo.Map(list, func(t *models.Token, _ int) TokenSummary {
		return TokenSummary{
			ID:          t.ID,
			Name:        t.Name,
			Token:       tokens.Mask(t.Prefix),
			Scope:       t.Scope,
			ExpiresAt:   t.ExpiresAt,
			OneTime:     t.OneTime,
			Revoked:     t.Revoked,
			AccessCount: t.AccessCount,
		}
	})

	// token events reference the stream through meta
	receipt.Events, err = s.events.ForResource(ctx, stream.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to collect stream events: %w", err)
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditConsentReceiptGenerated, "", fmt.Sprintf("Consent receipt for stream %s generated", stream.ID)).
		WithResource(stream.ID).
		WithMeta("tokens", len(receipt.Tokens)).
		WithMeta("events", len(receipt.Events)))

	s.logger.Info("consent receipt generated", zap.String("stream_id", stream.ID.String()))
	return receipt, nil
}

func summarize(rule *models.Rule) *RuleSummary {
	return &RuleSummary{
		ID:           rule.ID,
		Name:         rule.Name,
		Fields:       rule.Fields,
		Filters:      rule.Filters,
		Aggregations: rule.Aggregations,
		Obfuscation:  rule.Obfuscation,
		TTLMinutes:   rule.TTLMinutes,
	}
}
