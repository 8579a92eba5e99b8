package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
)

// ErrNotFound is wrapped by every store when a record does not exist
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is wrapped when a unique key (token hash, content hash) already exists
var ErrDuplicate = errors.New("duplicate record")

// ErrConflict is wrapped when a guarded update lost a race with another writer
var ErrConflict = errors.New("record changed concurrently")

// TransactionManager manages record store transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a record store transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DatasetRepository handles dataset records
type DatasetRepository interface {
	// Create stores a new dataset
	Create(ctx context.Context, dataset *models.Dataset) error

	// GetByID retrieves a dataset by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error)

	// GetByContentHash retrieves the dataset whose source bytes hash to hash
	GetByContentHash(ctx context.Context, hash string) (*models.Dataset, error)

	// List retrieves all datasets, newest first
	List(ctx context.Context) ([]*models.Dataset, error)

	// Delete deletes a dataset
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DatasetRepository
}

// RuleRepository handles rule records
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)

	// GetByDatasetID retrieves all rules referencing a dataset
	GetByDatasetID(ctx context.Context, datasetID uuid.UUID) ([]*models.Rule, error)

	List(ctx context.Context) ([]*models.Rule, error)
	Update(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
	WithTx(tx Transaction) RuleRepository
}

// StreamRepository handles stream records
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)

	// GetByRuleID retrieves all streams bound to a rule
	GetByRuleID(ctx context.Context, ruleID uuid.UUID) ([]*models.Stream, error)

	List(ctx context.Context) ([]*models.Stream, error)

	// Update persists status and access counters
	Update(ctx context.Context, stream *models.Stream) error

	WithTx(tx Transaction) StreamRepository
}

// TokenRepository handles token records
type TokenRepository interface {
	// Create stores a token; wraps ErrDuplicate when the secret hash is taken
	Create(ctx context.Context, token *models.Token) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error)

	// GetByHash retrieves a token by the SHA-256 of its secret
	GetByHash(ctx context.Context, hash string) (*models.Token, error)

	// GetByStreamID retrieves all tokens scoped to a stream
	GetByStreamID(ctx context.Context, streamID uuid.UUID) ([]*models.Token, error)

	List(ctx context.Context) ([]*models.Token, error)

	// Update persists revocation and usage counters
	Update(ctx context.Context, token *models.Token) error

	WithTx(tx Transaction) TokenRepository
}

// AuditRepository archives audit events beyond the in-memory retention window
type AuditRepository interface {
	// Insert inserts a new audit event
	Insert(ctx context.Context, event *models.AuditEvent) error

	// List retrieves archived events, newest first
	List(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error)

	// GetByResource retrieves archived events about one entity, newest first
	GetByResource(ctx context.Context, resourceID string, limit int) ([]*models.AuditEvent, error)
}

// BlobStore holds raw dataset bytes
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error

	// Get wraps ErrNotFound when key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Repositories holds all record store repositories
type Repositories struct {
	Datasets    DatasetRepository
	Rules       RuleRepository
	Streams     StreamRepository
	Tokens      TokenRepository
	AuditEvents AuditRepository // nil when the backend has no archive
	TxManager   TransactionManager
}
