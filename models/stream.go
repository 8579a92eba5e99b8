package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the lifecycle state of a stream
type StreamStatus string

const (
	StreamStatusActive  StreamStatus = "active"
	StreamStatusExpired StreamStatus = "expired"
	StreamStatusRevoked StreamStatus = "revoked"
)

// Stream binds a rule to a time-bounded, revocable access window.
// Status transitions are the only mutation path besides access counters.
type Stream struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	RuleID       uuid.UUID    `json:"rule_id" db:"rule_id"`
	Name         string       `json:"name" db:"name"`
	Status       StreamStatus `json:"status" db:"status"`
	ExpiresAt    time.Time    `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	AccessCount  int64        `json:"access_count" db:"access_count"`
	LastAccessed *time.Time   `json:"last_accessed,omitempty" db:"last_accessed"`
}

// TableName returns the table name for the Stream model
func (Stream) TableName() string {
	return "streams"
}

// NewStream creates an active stream expiring ttl after now
func NewStream(ruleID uuid.UUID, name string, now time.Time, ttl time.Duration) *Stream {
	return &Stream{
		ID:        uuid.New(),
		RuleID:    ruleID,
		Name:      name,
		Status:    StreamStatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsActive reports whether the stored status is active
func (s *Stream) IsActive() bool {
	return s.Status == StreamStatusActive
}

// IsTerminal reports whether no transition can leave the current status
func (s *Stream) IsTerminal() bool {
	return s.Status == StreamStatusExpired || s.Status == StreamStatusRevoked
}

// ShouldExpire reports whether an active stream has passed its expiry at now
func (s *Stream) ShouldExpire(now time.Time) bool {
	return s.Status == StreamStatusActive && !now.Before(s.ExpiresAt)
}
