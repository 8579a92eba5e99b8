// Package tokens issues and redeems stream-scoped bearer tokens.
package tokens

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
	"go.uber.org/zap"
)

const issueAttempts = 3

// StreamSource returns a stream with its current, observed status
type StreamSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

// IssueInput describes a new token
type IssueInput struct {
	StreamID  uuid.UUID           `json:"-"`
	Name      string              `json:"name" validate:"max=200"`
	Scope     []models.TokenScope `json:"scope"`
	OneTime   bool                `json:"one_time"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

// Service manages token records
type Service struct {
	tokens  repositories.TokenRepository
	streams StreamSource
	audit   services.AuditRecorder
	locks   *keylock.Locker
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates a new token Service
func NewService(tokens repositories.TokenRepository, streams StreamSource, audit services.AuditRecorder, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		tokens:  tokens,
		streams: streams,
		audit:   audit,
		locks:   keylock.New(0),
		clock:   clk,
		logger:  logger,
	}
}

// Issue creates a token for an active stream. The returned token is the only
// value that ever carries the secret.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*models.Token, error) {
	stream, err := s.streams.Get(ctx, in.StreamID)
	if err != nil {
		return nil, err
	}
	if !stream.IsActive() {
		return nil, services.NewDomainError(services.ErrorTypeStreamNotActive,
			fmt.Sprintf("stream is %s", stream.Status), nil).WithDetail("stream_id", stream.ID.String())
	}

	now := s.clock.Now()
	scope := in.Scope
	if len(scope) == 0 {
		scope = []models.TokenScope{models.ScopeRead}
	}

	var errs services.ValidationErrors
	for i, sc := range scope {
		if !models.ValidScope(sc) {
			errs.Add(fmt.Sprintf("scope[%d]", i), "unknown scope %q", sc)
		}
	}

	// a token never outlives its stream
	expiresAt := stream.ExpiresAt
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			errs.Add("expires_at", "must be in the future")
		} else if in.ExpiresAt.Before(expiresAt) {
			expiresAt = in.ExpiresAt.UTC()
		}
	}
	if len(errs) > 0 {
		return nil, services.NewValidationFailure(errs)
	}

	token := &models.Token{
		ID:        uuid.New(),
		StreamID:  stream.ID,
		Name:      in.Name,
		Scope:     scope,
		ExpiresAt: expiresAt,
		OneTime:   in.OneTime,
		CreatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		secret, err := newSecret()
		if err != nil {
			return nil, services.WrapInternal("failed to generate token", err)
		}
		token.Secret = secret
		token.SecretHash = HashSecret(secret)
		token.Prefix = secret[:prefixLength]

		err = s.tokens.Create(ctx, token)
		if err == nil {
			break
		}
		if !errors.Is(err, repositories.ErrDuplicate) || attempt == issueAttempts {
			return nil, fmt.Errorf("failed to create token: %w", err)
		}
		s.logger.Warn("token secret collision, regenerating", zap.Int("attempt", attempt))
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditTokenCreated, "", fmt.Sprintf("Token %s issued", token.ID)).
		WithResource(token.ID).
		WithMeta("stream_id", stream.ID.String()).
		WithMeta("one_time", token.OneTime).
		WithMeta("prefix", token.Prefix))

	s.logger.Info("token issued",
		zap.String("token_id", token.ID.String()),
		zap.String("stream_id", stream.ID.String()),
		zap.Bool("one_time", token.OneTime))

	return token, nil
}

// Redeem consumes one use of the token and returns its stream id
func (s *Service) Redeem(ctx context.Context, secret string) (uuid.UUID, error) {
	token, err := s.Authorize(ctx, secret, models.ScopeRead)
	if err != nil {
		return uuid.Nil, err
	}
	return token.StreamID, nil
}

// Authorize consumes one use of the token for an action needing scope.
// Checks run in order: expiry, revocation (token or stream), exhaustion, scope.
func (s *Service) Authorize(ctx context.Context, secret string, scope models.TokenScope) (*models.Token, error) {
	hash := HashSecret(secret)

	found, err := s.tokens.GetByHash(ctx, hash)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if found == nil || !hashesMatch(found.SecretHash, hash) {
		return nil, s.reject(ctx, nil, "unknown", services.ErrTokenRevoked)
	}

	unlock := s.locks.Lock(found.ID.String())
	defer unlock()

	token, err := s.tokens.GetByID(ctx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	now := s.clock.Now()
	if token.Expired(now) {
		return nil, s.reject(ctx, token, "expired", services.ErrTokenExpired)
	}
	if token.Revoked {
		return nil, s.reject(ctx, token, "revoked", services.ErrTokenRevoked)
	}

	stream, err := s.streams.Get(ctx, token.StreamID)
	if err != nil && !services.IsNotFoundError(err) {
		return nil, err
	}
	if stream == nil || !stream.IsActive() {
		return nil, s.reject(ctx, token, "stream_inactive",
			services.NewDomainError(services.ErrorTypeTokenRevoked, "stream is no longer active", nil))
	}

	if token.Exhausted() {
		return nil, s.reject(ctx, token, "exhausted", services.ErrTokenExhausted)
	}
	if !token.HasScope(scope) {
		return nil, s.reject(ctx, token, "scope",
			services.NewDomainError(services.ErrorTypeForbidden, fmt.Sprintf("token lacks %s scope", scope), nil))
	}

	token.AccessCount++
	token.LastUsed = &now
	if err := s.tokens.Update(ctx, token); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("failed to record token use: %w", err)
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditTokenUsed, models.ActorApp, fmt.Sprintf("Token %s used", token.ID)).
		WithResource(token.ID).
		WithMeta("stream_id", token.StreamID.String()).
		WithMeta("scope", string(scope)))

	return token.Redacted(), nil
}

func (s *Service) reject(ctx context.Context, token *models.Token, reason string, err error) error {
	event := models.NewAuditEvent(models.AuditTokenRejected, models.ActorApp, "Token rejected: "+reason).
		WithSeverity(models.SeverityWarning).
		WithMeta("reason", reason)
	if token != nil {
		event.WithResource(token.ID).WithMeta("stream_id", token.StreamID.String())
	}
	s.audit.Record(ctx, event)

	s.logger.Debug("token rejected", zap.String("reason", reason))
	return err
}

// Revoke marks a token revoked. Revoking twice succeeds; both calls are audited.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	token, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	noop := token.Revoked
	if !noop {
		token.Revoked = true
		if err := s.tokens.Update(ctx, token); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return nil, services.ErrConcurrentUpdate
			}
			return nil, fmt.Errorf("failed to revoke token: %w", err)
		}
	}

	event := models.NewAuditEvent(models.AuditTokenRevoked, "", fmt.Sprintf("Token %s revoked", id)).
		WithResource(id).
		WithMeta("stream_id", token.StreamID.String())
	if noop {
		event.WithMeta("noop", true)
	}
	s.audit.Record(ctx, event)

	s.logger.Info("token revoked", zap.String("token_id", id.String()), zap.Bool("noop", noop))

	return token, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	token, err := s.tokens.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("token", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// Get retrieves a token without its secret
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	return s.get(ctx, id)
}

// ListByStream retrieves the tokens scoped to a stream
func (s *Service) ListByStream(ctx context.Context, streamID uuid.UUID) ([]*models.Token, error) {
	tokens, err := s.tokens.GetByStreamID(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// List retrieves all tokens
func (s *Service) List(ctx context.Context) ([]*models.Token, error) {
	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}
