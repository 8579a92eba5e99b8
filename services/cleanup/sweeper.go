// Package cleanup periodically settles state the lazy lifecycle leaves
// behind: unobserved expiries, stale tokens and unreachable dataset sources.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/internal/shared"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fanOut = 8

// StreamSweeper observes every stream, applying due expiries
type StreamSweeper interface {
	ExpireDue(ctx context.Context) ([]*models.Stream, int, error)
}

// TokenRevoker lists and revokes tokens
type TokenRevoker interface {
	List(ctx context.Context) ([]*models.Token, error)
	Revoke(ctx context.Context, id uuid.UUID) (*models.Token, error)
}

// RuleReader returns stored rules
type RuleReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Rule, error)
}

// SourcePurger lists datasets and deletes their stored bytes
type SourcePurger interface {
	List(ctx context.Context) ([]*models.Dataset, error)
	PurgeSource(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// Report summarizes one sweep
type Report struct {
	ExpiredStreams int       `json:"expired_streams"`
	RevokedTokens  int       `json:"revoked_tokens"`
	PurgedSources  int       `json:"purged_dataset_files"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sweeper runs cleanup once or on an interval
type Sweeper struct {
	streams  StreamSweeper
	tokens   TokenRevoker
	rules    RuleReader
	datasets SourcePurger
	audit    services.AuditRecorder
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewSweeper creates a new Sweeper
func NewSweeper(
	streams StreamSweeper,
	tokens TokenRevoker,
	rules RuleReader,
	datasets SourcePurger,
	audit services.AuditRecorder,
	clk clock.Clock,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		streams:  streams,
		tokens:   tokens,
		rules:    rules,
		datasets: datasets,
		audit:    audit,
		clock:    clk,
		logger:   logger,
	}
}

// Run performs one sweep. Every transition it makes is audited with the
// system actor.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	ctx = shared.WithActor(ctx, models.ActorSystem)
	report := &Report{Timestamp: s.clock.Now()}

	streams, expired, err := s.streams.ExpireDue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to observe streams: %w", err)
	}
	report.ExpiredStreams = expired

	status := make(map[uuid.UUID]models.StreamStatus, len(streams))
	for _, st := range streams {
		status[st.ID] = st.Status
	}

	if report.RevokedTokens, err = s.revokeStale(ctx, status, report.Timestamp); err != nil {
		return nil, err
	}
	if report.PurgedSources, err = s.purgeUnreachable(ctx, streams); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditCleanupCompleted, models.ActorSystem, "Cleanup completed").
		WithMeta("expired_streams", report.ExpiredStreams).
		WithMeta("revoked_tokens", report.RevokedTokens).
		WithMeta("purged_dataset_files", report.PurgedSources))

	s.logger.Info("cleanup completed",
		zap.Int("expired_streams", report.ExpiredStreams),
		zap.Int("revoked_tokens", report.RevokedTokens),
		zap.Int("purged_sources", report.PurgedSources))

	return report, nil
}

// revokeStale revokes unrevoked tokens that are past expiry or whose stream
// is no longer active
func (s *Sweeper) revokeStale(ctx context.Context, status map[uuid.UUID]models.StreamStatus, now time.Time) (int, error) {
	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tokens: %w", err)
	}

	var revoked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for _, t := range tokens {
		if t.Revoked {
			continue
		}
		if !t.Expired(now) && status[t.StreamID] == models.StreamStatusActive {
			continue
		}
		g.Go(func() error {
			if _, err := s.tokens.Revoke(gctx, t.ID); err != nil {
				return fmt.Errorf("failed to revoke token %s: %w", t.ID, err)
			}
			revoked.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(revoked.Load()), err
}

// purgeUnreachable deletes the source of every dataset that has streams but
// none of them active
func (s *Sweeper) purgeUnreachable(ctx context.Context, streams []*models.Stream) (int, error) {
	referenced := make(map[uuid.UUID]bool) // dataset id -> has an active stream
	ruleDataset := make(map[uuid.UUID]uuid.UUID)

	for _, st := range streams {
		datasetID, ok := ruleDataset[st.RuleID]
		if !ok {
			rule, err := s.rules.Get(ctx, st.RuleID)
			if services.IsNotFoundError(err) {
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("failed to resolve stream rule: %w", err)
			}
			datasetID = rule.DatasetID
			ruleDataset[st.RuleID] = datasetID
		}
		referenced[datasetID] = referenced[datasetID] || st.IsActive()
	}

	var purged atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for datasetID, active := range referenced {
		if active {
			continue
		}
		g.Go(func() error {
			removed, err := s.datasets.PurgeSource(gctx, datasetID, "no active streams")
			if services.IsNotFoundError(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to purge dataset %s: %w", datasetID, err)
			}
			if removed {
				purged.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(purged.Load()), err
}

// Start runs a sweep every interval until Stop is called
func (s *Sweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sweeper already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("cleanup failed", zap.Error(err))
				}
			}
		}
	})

	s.cancel = cancel
	s.group = g
	s.logger.Info("cleanup sweeper started", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the periodic sweep and waits for an in-flight run to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return errors.New("sweeper not started")
	}
	cancel()
	err := g.Wait()
	s.logger.Info("cleanup sweeper stopped")
	return err
}
