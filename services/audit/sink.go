package audit

import (
	"context"
	"sync"

	"github.com/upb/dataguardian/models"
)

// DefaultCapacity is the number of events retained by a sink
const DefaultCapacity = 1000

// Sink is the bounded store behind the recorder
type Sink interface {
	// Append stores event, evicting the oldest when capacity is reached
	Append(ctx context.Context, event *models.AuditEvent) error

	// List returns up to limit events, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*models.AuditEvent, error)
}

// MemorySink is a fixed-capacity ring buffer
type MemorySink struct {
	mu     sync.RWMutex
	events []*models.AuditEvent
	next   int
	full   bool
}

// NewMemorySink creates a ring holding the last capacity events
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemorySink{events: make([]*models.AuditEvent, capacity)}
}

func (s *MemorySink) Append(_ context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.next] = event
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemorySink) List(_ context.Context, limit int) ([]*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]*models.AuditEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}

// Len returns the number of retained events
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.events)
	}
	return s.next
}
