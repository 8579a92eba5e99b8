package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

const streamColumns = `id, rule_id, name, status, expires_at, created_at, access_count, last_accessed`

// StreamRepository implements the repositories.StreamRepository interface
type StreamRepository struct {
	base
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *DB, logger *zap.Logger) repositories.StreamRepository {
	return &StreamRepository{base{db: db, logger: logger}}
}

// Create stores a new stream
func (r *StreamRepository) Create(ctx context.Context, stream *models.Stream) error {
	query := `INSERT INTO streams (` + streamColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.exec(ctx).ExecContext(ctx, query,
		stream.ID,
		stream.RuleID,
		stream.Name,
		stream.Status,
		stream.ExpiresAt,
		stream.CreatedAt,
		stream.AccessCount,
		nullTime(stream.LastAccessed),
	)
	if err != nil {
		return mapError("failed to create stream", err)
	}

	r.logger.Debug("stream created", zap.String("id", stream.ID.String()))
	return nil
}

// GetByID retrieves a stream by ID
func (r *StreamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE id = $1`
	stream, err := scanStream(r.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("stream %s", id), err)
	}
	return stream, nil
}

// GetByRuleID retrieves all streams bound to a rule
func (r *StreamRepository) GetByRuleID(ctx context.Context, ruleID uuid.UUID) ([]*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE rule_id = $1 ORDER BY created_at DESC`
	return r.queryStreams(ctx, query, ruleID)
}

// List retrieves all streams, newest first
func (r *StreamRepository) List(ctx context.Context) ([]*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams ORDER BY created_at DESC`
	return r.queryStreams(ctx, query)
}

// Update persists status and access counters. An update either records one
// access (status unchanged, access_count one higher) or ends an active stream
// (access_count unchanged). The WHERE clause accepts only those two starting
// states; anything else means another process got there first and yields
// repositories.ErrConflict.
func (r *StreamRepository) Update(ctx context.Context, stream *models.Stream) error {
	query := `
		UPDATE streams
		SET status = $2, access_count = $3, last_accessed = $4
		WHERE id = $1 AND (
			(status = $2 AND access_count = $3 - 1) OR
			(status = $5 AND $2 <> $5 AND access_count = $3)
		)
	`
	res, err := r.exec(ctx).ExecContext(ctx, query,
		stream.ID,
		stream.Status,
		stream.AccessCount,
		nullTime(stream.LastAccessed),
		models.StreamStatusActive,
	)
	if err != nil {
		return mapError("failed to update stream", err)
	}
	return r.expectUpdated(ctx, "failed to update stream", "streams", stream.ID, res)
}

// WithTx returns a new repository instance bound to the transaction
func (r *StreamRepository) WithTx(tx repositories.Transaction) repositories.StreamRepository {
	return &StreamRepository{r.bind(tx)}
}

func (r *StreamRepository) queryStreams(ctx context.Context, query string, args ...any) ([]*models.Stream, error) {
	rows, err := r.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	var out []*models.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		out = append(out, stream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stream rows: %w", err)
	}
	return out, nil
}

func scanStream(row rowScanner) (*models.Stream, error) {
	s := &models.Stream{}
	var lastAccessed sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.RuleID,
		&s.Name,
		&s.Status,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.AccessCount,
		&lastAccessed,
	)
	if err != nil {
		return nil, err
	}
	s.LastAccessed = timePtr(lastAccessed)
	return s, nil
}
