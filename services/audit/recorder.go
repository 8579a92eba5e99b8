// Package audit implements the append-only audit trail.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/internal/shared"
	"github.com/upb/dataguardian/models"
	"go.uber.org/zap"
)

// Recorder stamps events and appends them to the sink and, when configured, the archive
type Recorder struct {
	sink     Sink
	archiver *Archiver
	clock    clock.Clock
	logger   *zap.Logger
}

// Option configures a Recorder
type Option func(*Recorder)

// WithArchiver forwards every recorded event to a
func WithArchiver(a *Archiver) Option {
	return func(r *Recorder) { r.archiver = a }
}

// WithClock overrides the event timestamp source
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// NewRecorder creates a recorder over sink
func NewRecorder(sink Sink, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		sink:   sink,
		clock:  clock.Real(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores event and returns it. It never fails: sink and archive
// errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, event *models.AuditEvent) *models.AuditEvent {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.clock.Now()
	}
	if event.Actor == "" {
		event.Actor = shared.Actor(ctx)
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	// the trail outlives a cancelled request
	if err := r.sink.Append(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Error("failed to append audit event",
			zap.Error(err),
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID.String()))
	}

	if r.archiver != nil {
		_ = r.archiver.Enqueue(event)
	}

	r.logger.Debug("audit event recorded",
		zap.String("type", string(event.Type)),
		zap.String("actor", event.Actor),
		zap.String("resource_id", event.ResourceID))

	return event
}

// List returns up to limit events, newest first. limit <= 0 returns all retained events.
func (r *Recorder) List(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	events, err := r.sink.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// ForResource returns retained events about id, newest first
func (r *Recorder) ForResource(ctx context.Context, id string) ([]*models.AuditEvent, error) {
	events, err := r.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*models.AuditEvent, 0)
	for _, e := range events {
		if e.Concerns(id) {
			out = append(out, e)
		}
	}
	return out, nil
}
