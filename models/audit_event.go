package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType is the closed set of audited actions
type AuditEventType string

const (
	AuditDatasetCreated          AuditEventType = "dataset_created"
	AuditDatasetDeleted          AuditEventType = "dataset_deleted"
	AuditDatasetPurged           AuditEventType = "dataset_purged"
	AuditRuleCreated             AuditEventType = "rule_created"
	AuditRuleUpdated             AuditEventType = "rule_updated"
	AuditRuleDeleted             AuditEventType = "rule_deleted"
	AuditStreamCreated           AuditEventType = "stream_created"
	AuditStreamAccessed          AuditEventType = "stream_accessed"
	AuditStreamExpired           AuditEventType = "stream_expired"
	AuditStreamRevoked           AuditEventType = "stream_revoked"
	AuditStreamExported          AuditEventType = "stream_exported"
	AuditTokenCreated            AuditEventType = "token_created"
	AuditTokenRevoked            AuditEventType = "token_revoked"
	AuditTokenUsed               AuditEventType = "token_used"
	AuditTokenRejected           AuditEventType = "token_rejected"
	AuditEvaluationFailed        AuditEventType = "evaluation_failed"
	AuditConsentReceiptGenerated AuditEventType = "consent_receipt_generated"
	AuditCleanupCompleted        AuditEventType = "cleanup_completed"
)

// Severity of an audit event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Actor roles recorded on audit events
const (
	ActorCitizen = "citizen"
	ActorApp     = "app"
	ActorAdmin   = "admin"
	ActorSystem  = "system"
)

// AuditEvent is an append-only record of a mutating action
type AuditEvent struct {
	ID         uuid.UUID      `json:"id" db:"id" msgpack:"id"`
	Type       AuditEventType `json:"type" db:"type" msgpack:"type"`
	Actor      string         `json:"actor" db:"actor" msgpack:"actor"`
	Message    string         `json:"message" db:"message" msgpack:"message"`
	ResourceID string         `json:"resource_id,omitempty" db:"resource_id" msgpack:"resource_id,omitempty"`
	Meta       map[string]any `json:"meta,omitempty" db:"meta" msgpack:"meta,omitempty"`
	Severity   Severity       `json:"severity" db:"severity" msgpack:"severity"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at" msgpack:"created_at"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates an info-severity event. ID and CreatedAt are
// assigned by the recorder.
func NewAuditEvent(eventType AuditEventType, actor, message string) *AuditEvent {
	return &AuditEvent{
		Type:     eventType,
		Actor:    actor,
		Message:  message,
		Severity: SeverityInfo,
	}
}

// WithResource sets the id of the entity the event is about
func (e *AuditEvent) WithResource(id uuid.UUID) *AuditEvent {
	e.ResourceID = id.String()
	return e
}

// WithMeta adds a metadata entry
func (e *AuditEvent) WithMeta(key string, value any) *AuditEvent {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// WithSeverity sets the severity
func (e *AuditEvent) WithSeverity(severity Severity) *AuditEvent {
	e.Severity = severity
	return e
}

// Concerns reports whether the event is about the entity id, directly or via meta
func (e *AuditEvent) Concerns(id string) bool {
	if e.ResourceID == id {
		return true
	}
	for _, key := range []string{"stream_id", "rule_id", "dataset_id"} {
		if v, ok := e.Meta[key].(string); ok && v == id {
			return true
		}
	}
	return false
}
