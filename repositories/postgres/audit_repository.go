package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, type, actor, message, resource_id, meta, severity, created_at`

// AuditRepository archives audit events past the in-memory retention window
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	meta, err := jsonb(event.Meta)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_events (` + auditColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = GetExecutor(ctx, r.db).ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Actor,
		event.Message,
		sql.NullString{String: event.ResourceID, Valid: event.ResourceID != ""},
		meta,
		event.Severity,
		event.CreatedAt,
	)
	if err != nil {
		return mapError("failed to insert audit event", err)
	}

	r.logger.Debug("audit event archived",
		zap.String("id", event.ID.String()),
		zap.String("type", string(event.Type)))
	return nil
}

// List retrieves archived events, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.queryEvents(ctx, query, limit, offset)
}

// GetByResource retrieves archived events about one entity, newest first
func (r *AuditRepository) GetByResource(ctx context.Context, resourceID string, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_events
		WHERE resource_id = $1
		   OR meta->>'stream_id' = $1
		   OR meta->>'rule_id' = $1
		   OR meta->>'dataset_id' = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, resourceID, limit)
}

func (r *AuditRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*models.AuditEvent, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		e := &models.AuditEvent{}
		var resourceID sql.NullString
		err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.Actor,
			&e.Message,
			&resourceID,
			scanJSON(&e.Meta),
			&e.Severity,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.ResourceID = resourceID.String
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}

	return events, nil
}
