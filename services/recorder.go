package services

import (
	"context"

	"github.com/upb/dataguardian/models"
)

// AuditRecorder appends events to the audit trail. Record never fails;
// it returns the stored event with id, timestamp and actor filled in.
type AuditRecorder interface {
	Record(ctx context.Context, event *models.AuditEvent) *models.AuditEvent
}
