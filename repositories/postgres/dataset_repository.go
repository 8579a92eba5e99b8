package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"go.uber.org/zap"
)

const datasetColumns = `id, name, row_count, schema, stats, content_hash, size_bytes, origin, created_at`

// DatasetRepository implements the repositories.DatasetRepository interface
type DatasetRepository struct {
	base
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *DB, logger *zap.Logger) repositories.DatasetRepository {
	return &DatasetRepository{base{db: db, logger: logger}}
}

// Create stores a new dataset
func (r *DatasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	schema, err := jsonb(dataset.Schema)
	if err != nil {
		return err
	}
	stats, err := jsonb(dataset.Stats)
	if err != nil {
		return err
	}

	query := `INSERT INTO datasets (` + datasetColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.exec(ctx).ExecContext(ctx, query,
		dataset.ID,
		dataset.Name,
		dataset.RowCount,
		schema,
		stats,
		dataset.ContentHash,
		dataset.SizeBytes,
		dataset.Origin,
		dataset.CreatedAt,
	)
	if err != nil {
		return mapError("failed to create dataset", err)
	}

	r.logger.Debug("dataset created", zap.String("id", dataset.ID.String()))
	return nil
}

// GetByID retrieves a dataset by ID
func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE id = $1`
	ds, err := scanDataset(r.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("dataset %s", id), err)
	}
	return ds, nil
}

// GetByContentHash retrieves the dataset whose source bytes hash to hash
func (r *DatasetRepository) GetByContentHash(ctx context.Context, hash string) (*models.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE content_hash = $1`
	ds, err := scanDataset(r.exec(ctx).QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, mapError("dataset by hash", err)
	}
	return ds, nil
}

// List retrieves all datasets, newest first
func (r *DatasetRepository) List(ctx context.Context) ([]*models.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets ORDER BY created_at DESC`
	rows, err := r.exec(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var out []*models.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset rows: %w", err)
	}
	return out, nil
}

// Delete deletes a dataset
func (r *DatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return mapError("failed to delete dataset", err)
	}
	if err := expectAffected("failed to delete dataset", res); err != nil {
		return err
	}
	r.logger.Debug("dataset deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *DatasetRepository) WithTx(tx repositories.Transaction) repositories.DatasetRepository {
	return &DatasetRepository{r.bind(tx)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*models.Dataset, error) {
	ds := &models.Dataset{}
	var stats models.DatasetStats
	var hasStats bool
	err := row.Scan(
		&ds.ID,
		&ds.Name,
		&ds.RowCount,
		scanJSON(&ds.Schema),
		presenceScanner{dest: &stats, present: &hasStats},
		&ds.ContentHash,
		&ds.SizeBytes,
		&ds.Origin,
		&ds.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if hasStats {
		ds.Stats = &stats
	}
	return ds, nil
}

// presenceScanner decodes a nullable JSONB column and records whether it was set
type presenceScanner struct {
	dest    any
	present *bool
}

func (s presenceScanner) Scan(src any) error {
	if src == nil {
		return nil
	}
	*s.present = true
	return jsonbScanner{dest: s.dest}.Scan(src)
}
