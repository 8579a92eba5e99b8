package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/dataguardian/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{DB: db, logger: logger}, nil
}

// Wrap adopts an already open pool. Used with sqlmock in tests.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the tables when missing. Rules carry no foreign key to
// datasets: deleting a dataset orphans its rules instead of cascading.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS datasets (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			row_count INTEGER NOT NULL,
			schema JSONB NOT NULL,
			stats JSONB,
			content_hash CHAR(64) NOT NULL UNIQUE,
			size_bytes BIGINT NOT NULL,
			origin VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS rules (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			dataset_id UUID NOT NULL,
			fields TEXT[] NOT NULL,
			filters JSONB NOT NULL DEFAULT '[]',
			aggregations JSONB NOT NULL DEFAULT '[]',
			obfuscation JSONB,
			ttl_minutes INTEGER NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS streams (
			id UUID PRIMARY KEY,
			rule_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			access_count BIGINT NOT NULL DEFAULT 0,
			last_accessed TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS tokens (
			id UUID PRIMARY KEY,
			stream_id UUID NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			token_hash CHAR(64) NOT NULL UNIQUE,
			token_prefix VARCHAR(16) NOT NULL,
			scope JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			one_time BOOLEAN NOT NULL DEFAULT false,
			revoked BOOLEAN NOT NULL DEFAULT false,
			access_count BIGINT NOT NULL DEFAULT 0,
			last_used TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			type VARCHAR(64) NOT NULL,
			actor VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			resource_id VARCHAR(64),
			meta JSONB,
			severity VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_rules_dataset_id ON rules(dataset_id);
		CREATE INDEX IF NOT EXISTS idx_streams_rule_id ON streams(rule_id);
		CREATE INDEX IF NOT EXISTS idx_streams_status ON streams(status);
		CREATE INDEX IF NOT EXISTS idx_tokens_stream_id ON tokens(stream_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_resource_id ON audit_events(resource_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
