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

const tokenColumns = `id, stream_id, name, token_hash, token_prefix, scope, expires_at, one_time, revoked, access_count, last_used, created_at`

// TokenRepository implements the repositories.TokenRepository interface
type TokenRepository struct {
	base
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB, logger *zap.Logger) repositories.TokenRepository {
	return &TokenRepository{base{db: db, logger: logger}}
}

// Create stores a token; a taken hash surfaces as repositories.ErrDuplicate
func (r *TokenRepository) Create(ctx context.Context, token *models.Token) error {
	scope, err := jsonb(token.Scope)
	if err != nil {
		return err
	}

	query := `INSERT INTO tokens (` + tokenColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.exec(ctx).ExecContext(ctx, query,
		token.ID,
		token.StreamID,
		token.Name,
		token.SecretHash,
		token.Prefix,
		scope,
		token.ExpiresAt,
		token.OneTime,
		token.Revoked,
		token.AccessCount,
		nullTime(token.LastUsed),
		token.CreatedAt,
	)
	if err != nil {
		return mapError("failed to create token", err)
	}

	r.logger.Debug("token created",
		zap.String("id", token.ID.String()),
		zap.String("stream_id", token.StreamID.String()))
	return nil
}

// GetByID retrieves a token by ID
func (r *TokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`
	token, err := scanToken(r.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("token %s", id), err)
	}
	return token, nil
}

// GetByHash retrieves a token by the SHA-256 of its secret
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE token_hash = $1`
	token, err := scanToken(r.exec(ctx).QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, mapError("token by hash", err)
	}
	return token, nil
}

// GetByStreamID retrieves all tokens scoped to a stream
func (r *TokenRepository) GetByStreamID(ctx context.Context, streamID uuid.UUID) ([]*models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE stream_id = $1 ORDER BY created_at DESC`
	return r.queryTokens(ctx, query, streamID)
}

// List retrieves all tokens, newest first
func (r *TokenRepository) List(ctx context.Context) ([]*models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY created_at DESC`
	return r.queryTokens(ctx, query)
}

// Update persists revocation and usage counters. Every update moves a live
// token one step: a use adds one to access_count, a revocation keeps it. The
// WHERE clause checks the row is still in the state that step started from;
// a token another process used or revoked meanwhile yields
// repositories.ErrConflict.
func (r *TokenRepository) Update(ctx context.Context, token *models.Token) error {
	query := `
		UPDATE tokens
		SET revoked = $2, access_count = $3, last_used = $4
		WHERE id = $1 AND NOT revoked AND access_count = $5
	`
	previous := token.AccessCount
	if !token.Revoked {
		previous--
	}
	res, err := r.exec(ctx).ExecContext(ctx, query,
		token.ID,
		token.Revoked,
		token.AccessCount,
		nullTime(token.LastUsed),
		previous,
	)
	if err != nil {
		return mapError("failed to update token", err)
	}
	return r.expectUpdated(ctx, "failed to update token", "tokens", token.ID, res)
}

// WithTx returns a new repository instance bound to the transaction
func (r *TokenRepository) WithTx(tx repositories.Transaction) repositories.TokenRepository {
	return &TokenRepository{r.bind(tx)}
}

func (r *TokenRepository) queryTokens(ctx context.Context, query string, args ...any) ([]*models.Token, error) {
	rows, err := r.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token rows: %w", err)
	}
	return out, nil
}

func scanToken(row rowScanner) (*models.Token, error) {
	t := &models.Token{}
	var lastUsed sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.StreamID,
		&t.Name,
		&t.SecretHash,
		&t.Prefix,
		scanJSON(&t.Scope),
		&t.ExpiresAt,
		&t.OneTime,
		&t.Revoked,
		&t.AccessCount,
		&lastUsed,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.LastUsed = timePtr(lastUsed)
	return t, nil
}
