// Package sqlite is the embedded single-node record store, built on gorm
// over the pure-Go modernc driver with goose migrations.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Open opens (creating when missing) the database file at path
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// NewRepositories opens path, migrates it and returns the repositories with a close func
func NewRepositories(ctx context.Context, path string) (*repositories.Repositories, func() error, error) {
	db, err := Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	return &repositories.Repositories{
		Datasets:  &DatasetRepository{db: db},
		Rules:     &RuleRepository{db: db},
		Streams:   &StreamRepository{db: db},
		Tokens:    &TokenRepository{db: db},
		TxManager: &TransactionManager{db: db},
	}, sqlDB.Close, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(op string, res *gorm.DB) error {
	if res.Error != nil {
		return mapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	return nil
}

// TransactionManager hands out gorm transactions
type TransactionManager struct {
	db *gorm.DB
}

type transaction struct {
	tx  *gorm.DB
	ctx context.Context
}

func (t *transaction) Commit() error            { return t.tx.Commit().Error }
func (t *transaction) Rollback() error          { return t.tx.Rollback().Error }
func (t *transaction) Context() context.Context { return t.ctx }

// Begin starts a new transaction
func (m *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return &transaction{tx: tx, ctx: ctx}, nil
}

// InTransaction commits when fn succeeds and rolls back otherwise
func (m *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func bind(db *gorm.DB, tx repositories.Transaction) *gorm.DB {
	if t, ok := tx.(*transaction); ok {
		return t.tx
	}
	return db
}

// DatasetRepository implements repositories.DatasetRepository
type DatasetRepository struct{ db *gorm.DB }

func (r *DatasetRepository) Create(ctx context.Context, d *models.Dataset) error {
	m := datasetModel(d)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mapError("failed to create dataset", err)
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	var m DatasetModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, mapError(fmt.Sprintf("dataset %s", id), err)
	}
	return m.domain(), nil
}

func (r *DatasetRepository) GetByContentHash(ctx context.Context, hash string) (*models.Dataset, error) {
	var m DatasetModel
	if err := r.db.WithContext(ctx).First(&m, "content_hash = ?", hash).Error; err != nil {
		return nil, mapError("dataset by hash", err)
	}
	return m.domain(), nil
}

func (r *DatasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	rows := make([]DatasetModel, 0)
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapError("failed to list datasets", err)
	}
	out := make([]*models.Dataset, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.domain())
	}
	return out, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected("failed to delete dataset", r.db.WithContext(ctx).Delete(&DatasetModel{}, "id = ?", id.String()))
}

func (r *DatasetRepository) WithTx(tx repositories.Transaction) repositories.DatasetRepository {
	return &DatasetRepository{db: bind(r.db, tx)}
}

// RuleRepository implements repositories.RuleRepository
type RuleRepository struct{ db *gorm.DB }

func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	m := ruleModel(rule)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mapError("failed to create rule", err)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	var m RuleModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, mapError(fmt.Sprintf("rule %s", id), err)
	}
	return m.domain(), nil
}

func (r *RuleRepository) GetByDatasetID(ctx context.Context, datasetID uuid.UUID) ([]*models.Rule, error) {
	return r.find(r.db.WithContext(ctx).Where("dataset_id = ?", datasetID.String()))
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.Rule, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *RuleRepository) find(q *gorm.DB) ([]*models.Rule, error) {
	rows := make([]RuleModel, 0)
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapError("failed to list rules", err)
	}
	out := make([]*models.Rule, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.domain())
	}
	return out, nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	m := ruleModel(rule)
	res := r.db.WithContext(ctx).Model(&RuleModel{ID: m.ID}).
		Select("name", "dataset_id", "fields", "filters", "aggregations", "obfuscation", "ttl_minutes", "tags", "updated_at").
		Updates(&m)
	return affected("failed to update rule", res)
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected("failed to delete rule", r.db.WithContext(ctx).Delete(&RuleModel{}, "id = ?", id.String()))
}

func (r *RuleRepository) WithTx(tx repositories.Transaction) repositories.RuleRepository {
	return &RuleRepository{db: bind(r.db, tx)}
}

// StreamRepository implements repositories.StreamRepository
type StreamRepository struct{ db *gorm.DB }

func (r *StreamRepository) Create(ctx context.Context, s *models.Stream) error {
	m := streamModel(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mapError("failed to create stream", err)
	}
	return nil
}

func (r *StreamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	var m StreamModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, mapError(fmt.Sprintf("stream %s", id), err)
	}
	return m.domain(), nil
}

func (r *StreamRepository) GetByRuleID(ctx context.Context, ruleID uuid.UUID) ([]*models.Stream, error) {
	return r.find(r.db.WithContext(ctx).Where("rule_id = ?", ruleID.String()))
}

func (r *StreamRepository) List(ctx context.Context) ([]*models.Stream, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *StreamRepository) find(q *gorm.DB) ([]*models.Stream, error) {
	rows := make([]StreamModel, 0)
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapError("failed to list streams", err)
	}
	out := make([]*models.Stream, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.domain())
	}
	return out, nil
}

func (r *StreamRepository) Update(ctx context.Context, s *models.Stream) error {
	res := r.db.WithContext(ctx).Model(&StreamModel{ID: s.ID.String()}).Updates(map[string]any{
		"status":        string(s.Status),
		"access_count":  s.AccessCount,
		"last_accessed": s.LastAccessed,
	})
	return affected("failed to update stream", res)
}

func (r *StreamRepository) WithTx(tx repositories.Transaction) repositories.StreamRepository {
	return &StreamRepository{db: bind(r.db, tx)}
}

// TokenRepository implements repositories.TokenRepository
type TokenRepository struct{ db *gorm.DB }

func (r *TokenRepository) Create(ctx context.Context, t *models.Token) error {
	m := tokenModel(t)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mapError("failed to create token", err)
	}
	return nil
}

func (r *TokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	var m TokenModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, mapError(fmt.Sprintf("token %s", id), err)
	}
	return m.domain(), nil
}

func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*models.Token, error) {
	var m TokenModel
	if err := r.db.WithContext(ctx).First(&m, "token_hash = ?", hash).Error; err != nil {
		return nil, mapError("token by hash", err)
	}
	return m.domain(), nil
}

func (r *TokenRepository) GetByStreamID(ctx context.Context, streamID uuid.UUID) ([]*models.Token, error) {
	return r.find(r.db.WithContext(ctx).Where("stream_id = ?", streamID.String()))
}

func (r *TokenRepository) List(ctx context.Context) ([]*models.Token, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *TokenRepository) find(q *gorm.DB) ([]*models.Token, error) {
	rows := make([]TokenModel, 0)
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapError("failed to list tokens", err)
	}
	out := make([]*models.Token, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.domain())
	}
	return out, nil
}

func (r *TokenRepository) Update(ctx context.Context, t *models.Token) error {
	res := r.db.WithContext(ctx).Model(&TokenModel{ID: t.ID.String()}).Updates(map[string]any{
		"revoked":      t.Revoked,
		"access_count": t.AccessCount,
		"last_used":    t.LastUsed,
	})
	return affected("failed to update token", res)
}

func (r *TokenRepository) WithTx(tx repositories.Transaction) repositories.TokenRepository {
	return &TokenRepository{db: bind(r.db, tx)}
}
