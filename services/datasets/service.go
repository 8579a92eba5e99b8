// Package datasets ingests CSV sources, infers their schema and keeps the raw
// bytes in the blob store.
package datasets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/schema"
	"go.uber.org/zap"
)

// Service manages datasets and their source bytes
type Service struct {
	datasets   repositories.DatasetRepository
	rules      repositories.RuleRepository
	txMgr      repositories.TransactionManager
	blobs      repositories.BlobStore
	inferencer *schema.Inferencer
	rows       *expirable.LRU[uuid.UUID, *schema.Table]
	audit      services.AuditRecorder
	clock      clock.Clock
	logger     *zap.Logger
	maxBytes   int64
}

// NewService creates a new dataset Service
func NewService(
	repos *repositories.Repositories,
	blobs repositories.BlobStore,
	inferencer *schema.Inferencer,
	policy config.PrivacyPolicy,
	audit services.AuditRecorder,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		datasets:   repos.Datasets,
		rules:      repos.Rules,
		txMgr:      repos.TxManager,
		blobs:      blobs,
		inferencer: inferencer,
		rows:       expirable.NewLRU[uuid.UUID, *schema.Table](policy.RowsCacheSize, nil, policy.RowsCacheTTL),
		audit:      audit,
		clock:      clk,
		logger:     logger,
		maxBytes:   policy.MaxUploadBytes,
	}
}

// Upload parses and infers r, stores the raw bytes and persists the dataset.
// Bytes already known by content hash are rejected with a Conflict carrying
// the existing dataset id.
func (s *Service) Upload(ctx context.Context, name string, origin models.DatasetOrigin, r io.Reader) (*models.Dataset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.NewValidationFailure(services.ValidationErrors{{Field: "name", Reason: "is required"}})
	}
	if origin == "" {
		origin = models.DatasetOriginUpload
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, services.NewParseError("failed to read input", 0, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, services.NewValidationFailure(services.ValidationErrors{
			{Field: "file", Reason: fmt.Sprintf("exceeds %d bytes", s.maxBytes)},
		})
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.NewParseError("input is empty", 0, nil)
	}

	hash := schema.ContentHash(data)
	if existing, err := s.datasets.GetByContentHash(ctx, hash); err == nil {
		return nil, duplicate(existing.ID)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check content hash: %w", err)
	}

	table, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}
	columns, stats, err := s.inferencer.Infer(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema: %w", err)
	}

	dataset := models.NewDataset(name, origin, s.clock.Now())
	dataset.Schema = columns
	dataset.Stats = stats
	dataset.RowCount = len(table.Rows)
	dataset.ContentHash = hash
	dataset.SizeBytes = int64(len(data))

	if err := s.blobs.Put(ctx, dataset.BlobKey(), data); err != nil {
		return nil, services.WrapInternal("failed to store dataset source", err)
	}

	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		return s.datasets.WithTx(tx).Create(ctx, dataset)
	})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), dataset.BlobKey()); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("key", dataset.BlobKey()), zap.Error(delErr))
		}
		if errors.Is(err, repositories.ErrDuplicate) {
			// lost a race with a concurrent upload of the same bytes
			if existing, getErr := s.datasets.GetByContentHash(ctx, hash); getErr == nil {
				return nil, duplicate(existing.ID)
			}
		}
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	s.rows.Add(dataset.ID, table)

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditDatasetCreated, "", fmt.Sprintf("Dataset %q created", dataset.Name)).
		WithResource(dataset.ID).
		WithMeta("content_hash", hash).
		WithMeta("rows", dataset.RowCount).
		WithMeta("origin", string(origin)))

	s.logger.Info("dataset created",
		zap.String("dataset_id", dataset.ID.String()),
		zap.Int("rows", dataset.RowCount),
		zap.Int("columns", len(columns)))

	return dataset, nil
}

func duplicate(existing uuid.UUID) error {
	return services.NewDomainError(services.ErrorTypeConflict, "dataset with identical content already exists", nil).
		WithDetail("existing_id", existing.String())
}

// Sample creates the demo dataset. Calling it again returns the stored copy.
func (s *Service) Sample(ctx context.Context) (*models.Dataset, error) {
	data := sampleCSV()
	if existing, err := s.datasets.GetByContentHash(ctx, schema.ContentHash(data)); err == nil {
		return existing, nil
	}
	return s.Upload(ctx, sampleName, models.DatasetOriginSample, bytes.NewReader(data))
}

// Get retrieves a dataset by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	dataset, err := s.datasets.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewNotFoundError("dataset", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return dataset, nil
}

// List retrieves all datasets, newest first
func (s *Service) List(ctx context.Context) ([]*models.Dataset, error) {
	datasets, err := s.datasets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

// Rows returns the parsed source of a dataset. Tables are cached and must
// not be modified by callers.
func (s *Service) Rows(ctx context.Context, id uuid.UUID) (*schema.Table, error) {
	if table, ok := s.rows.Get(id); ok {
		return table, nil
	}

	dataset, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Get(ctx, dataset.BlobKey())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "dataset source has been purged", err).
			WithDetail("id", id.String())
	}
	if err != nil {
		return nil, services.WrapInternal("failed to read dataset source", err)
	}

	table, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stored dataset %s is unreadable: %w", id, err)
	}
	s.rows.Add(id, table)
	return table, nil
}

// Delete removes the dataset and its source. Rules referencing it stay in
// place and fail revalidation from then on.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	orphaned, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (int, error) {
		rules, err := s.rules.WithTx(tx).GetByDatasetID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to list dataset rules: %w", err)
		}
		if err := s.datasets.WithTx(tx).Delete(ctx, id); err != nil {
			return 0, err
		}
		return len(rules), nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	s.rows.Remove(id)
	if err := s.blobs.Delete(ctx, dataset.BlobKey()); err != nil {
		s.logger.Warn("failed to delete dataset source", zap.String("dataset_id", id.String()), zap.Error(err))
	}

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditDatasetDeleted, "", fmt.Sprintf("Dataset %q deleted", dataset.Name)).
		WithResource(id).
		WithMeta("orphaned_rules", orphaned))

	s.logger.Info("dataset deleted", zap.String("dataset_id", id.String()), zap.Int("orphaned_rules", orphaned))
	return nil
}

// PurgeSource deletes the stored bytes of a dataset while keeping its record.
// It reports whether anything was removed.
func (s *Service) PurgeSource(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	exists, err := s.blobs.Exists(ctx, dataset.BlobKey())
	if err != nil {
		return false, services.WrapInternal("failed to check dataset source", err)
	}
	if !exists {
		return false, nil
	}
	if err := s.blobs.Delete(ctx, dataset.BlobKey()); err != nil {
		return false, services.WrapInternal("failed to purge dataset source", err)
	}
	s.rows.Remove(id)

	s.audit.Record(ctx, models.NewAuditEvent(models.AuditDatasetPurged, "", fmt.Sprintf("Dataset source for %s purged", id)).
		WithResource(id).
		WithMeta("reason", reason))

	s.logger.Info("dataset source purged", zap.String("dataset_id", id.String()), zap.String("reason", reason))
	return true, nil
}
