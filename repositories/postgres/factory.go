package postgres

import (
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the pool described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Datasets:    NewDatasetRepository(f.db, f.logger),
		Rules:       NewRuleRepository(f.db, f.logger),
		Streams:     NewStreamRepository(f.db, f.logger),
		Tokens:      NewTokenRepository(f.db, f.logger),
		AuditEvents: NewAuditRepository(f.db, f.logger),
		TxManager:   NewTransactionManager(f.db, f.logger),
	}
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
