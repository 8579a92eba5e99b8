// Package streams manages the stream lifecycle: active, then expired or
// revoked. Expiry is observed lazily on every read.
package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/internal/keylock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/rules"
	"go.uber.org/zap"
)

// RuleChecker re-validates a stored rule against its dataset
type RuleChecker interface {
	Revalidate(ctx context.Context, ruleID uuid.UUID) (rules.ValidRule, *models.Dataset, error)
}

// CreateInput describes a new stream
type CreateInput struct {
	RuleID     uuid.UUID `json:"rule_id" validate:"required"`
	Name       string    `json:"name" validate:"max=200"`
	TTLMinutes *int      `json:"ttl_minutes,omitempty" validate:"omitempty,gt=0"`
}

// Service manages stream records
type Service struct {
	streams repositories.StreamRepository
	rules   RuleChecker
	audit   services.AuditRecorder
	locks   *keylock.Locker
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates a new stream Service
func NewService(streams repositories.StreamRepository, rules RuleChecker, audit services.AuditRecorder, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		streams: streams,
		rules:   rules,
		audit:   audit,
		locks:   keylock.New(0),
		clock:   clk,
		logger:  logger,
	}
}

// Create binds a re-validated rule to a new active stream. The window is the
// rule's ttl unless in.TTLMinutes overrides it.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Stream, error) {
	valid, dataset, err := s.rules.Revalidate(ctx, in.RuleID)
	if err != nil {
		return nil, err
	}
	rule := valid.Rule()

	ttl := rule.TTL()
	if in.TTLMinutes != nil {
		if *in.TTLMinutes <= 0 {
			return nil, services.NewValidationFailure(services.ValidationErrors{{Field: "ttl_minutes", Reason: "must be positive"}})
		}
		ttl = time.Duration(*in.TTLMinutes) * time.Minute
	}

	name := in.Name
	if name == "" {
		name = "Stream for " + rule.Name
	}

	stream := models.NewStream(rule.ID, name, s.clock.Now(), ttl)
	if err := s.streams.Create(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditStreamCreated, "", fmt.Sprintf("Stream %s created", stream.ID)).
		WithResource(stream.ID).
		WithMeta("rule_id", rule.ID.String()).
		WithMeta("dataset_id", dataset.ID.String()).
		WithMeta("expires_at", stream.ExpiresAt.Format(time.RFC3339)))

	s.logger.Info("stream created",
		zap.String("stream_id", stream.ID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.Time("expires_at", stream.ExpiresAt))

	return stream, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("stream", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return stream, nil
}

// observe applies lazy expiry and reports whether this call made the
// transition. The unlocked check keeps reads of live streams lock-free; the
// transition itself happens under the stream lock.
func (s *Service) observe(ctx context.Context, stream *models.Stream) (*models.Stream, bool, error) {
	if !stream.ShouldExpire(s.clock.Now()) {
		return stream, false, nil
	}

	unlock := s.locks.Lock(stream.ID.String())
	defer unlock()

	fresh, err := s.load(ctx, stream.ID)
	if err != nil {
		return nil, false, err
	}
	return s.observeLocked(ctx, fresh)
}

// observeLocked expires stream if due. Caller holds the stream lock.
func (s *Service) observeLocked(ctx context.Context, stream *models.Stream) (*models.Stream, bool, error) {
	if !stream.ShouldExpire(s.clock.Now()) {
		return stream, false, nil
	}

	stream.Status = models.StreamStatusExpired
	if err := s.streams.Update(ctx, stream); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, false, services.ErrConcurrentUpdate
		}
		return nil, false, fmt.Errorf("failed to expire stream: %w", err)
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditStreamExpired, models.ActorSystem, fmt.Sprintf("Stream %s expired", stream.ID)).
		WithResource(stream.ID).
		WithMeta("rule_id", stream.RuleID.String()).
		WithMeta("expires_at", stream.ExpiresAt.Format(time.RFC3339)))

	s.logger.Info("stream expired", zap.String("stream_id", stream.ID.String()))

	return stream, true, nil
}

// Get retrieves a stream with its current status
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	stream, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	stream, _, err = s.observe(ctx, stream)
	return stream, err
}

// List retrieves all streams, newest first
func (s *Service) List(ctx context.Context) ([]*models.Stream, error) {
	streams, err := s.streams.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	return s.observeAll(ctx, streams)
}

// ListByRule retrieves the streams bound to a rule
func (s *Service) ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*models.Stream, error) {
	streams, err := s.streams.GetByRuleID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams for rule: %w", err)
	}
	return s.observeAll(ctx, streams)
}

func (s *Service) observeAll(ctx context.Context, streams []*models.Stream) ([]*models.Stream, error) {
	for i, stream := range streams {
		observed, _, err := s.observe(ctx, stream)
		if err != nil {
			return nil, err
		}
		streams[i] = observed
	}
	return streams, nil
}

// ExpireDue observes every stream and returns them along with the number
// of expiry transitions this call performed.
func (s *Service) ExpireDue(ctx context.Context) ([]*models.Stream, int, error) {
	streams, err := s.streams.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list streams: %w", err)
	}

	expired := 0
	for i, stream := range streams {
		observed, transitioned, err := s.observe(ctx, stream)
		if err != nil {
			return nil, expired, err
		}
		if transitioned {
			expired++
		}
		streams[i] = observed
	}
	return streams, expired, nil
}

// Revoke moves an active stream to revoked. Revoking a stream that is
// already expired or revoked succeeds without change; both cases are audited.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	stream, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if stream, _, err = s.observeLocked(ctx, stream); err != nil {
		return nil, err
	}

	previous := stream.Status
	noop := stream.IsTerminal()
	if !noop {
		stream.Status = models.StreamStatusRevoked
		if err := s.streams.Update(ctx, stream); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return nil, services.ErrConcurrentUpdate
			}
			return nil, fmt.Errorf("failed to revoke stream: %w", err)
		}
	}

	event := models.NewAuditEvent(models.AuditStreamRevoked, "", fmt.Sprintf("Stream %s revoked", id)).
		WithResource(id).
		WithMeta("previous_status", string(previous))
	if noop {
		event.WithMeta("noop", true)
	}
	s.audit.Record(ctx, event)

	s.logger.Info("stream revoked",
		zap.String("stream_id", id.String()),
		zap.Bool("noop", noop))

	return stream, nil
}

// RecordAccess counts one successful read of the stream
func (s *Service) RecordAccess(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	stream, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	stream.AccessCount++
	stream.LastAccessed = &now
	if err := s.streams.Update(ctx, stream); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("failed to record stream access: %w", err)
	}
	return stream, nil
}
