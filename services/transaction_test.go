package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
	"github.com/upb/dataguardian/repositories/postgres"
	"github.com/upb/dataguardian/services"
	"go.uber.org/zap"
)

type pgFixture struct {
	mock     sqlmock.Sqlmock
	txMgr    repositories.TransactionManager
	datasets repositories.DatasetRepository
	rules    repositories.RuleRepository
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := postgres.Wrap(sqlDB, zap.NewNop())
	return &pgFixture{
		mock:     mock,
		txMgr:    postgres.NewTransactionManager(db, zap.NewNop()),
		datasets: postgres.NewDatasetRepository(db, zap.NewNop()),
		rules:    postgres.NewRuleRepository(db, zap.NewNop()),
	}
}

func newDataset() *models.Dataset {
	ds := models.NewDataset("census", models.DatasetOriginUpload, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	ds.ContentHash = "abc"
	return ds
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits the dataset insert", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO datasets").WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		err := services.WithTransaction(ctx, f.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
			return f.datasets.WithTx(tx).Create(ctx, newDataset())
		})
		require.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("rolls back a duplicate upload", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO datasets").WillReturnError(&pq.Error{Code: "23505"})
		f.mock.ExpectRollback()

		err := services.WithTransaction(ctx, f.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
			return f.datasets.WithTx(tx).Create(ctx, newDataset())
		})
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		called := false
		err := services.WithTransaction(ctx, f.txMgr, func(context.Context, repositories.Transaction) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
		assert.False(t, called)
	})

	t.Run("commit failure", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO datasets").WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := services.WithTransaction(ctx, f.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
			return f.datasets.WithTx(tx).Create(ctx, newDataset())
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = services.WithTransaction(ctx, f.txMgr, func(context.Context, repositories.Transaction) error {
				panic("boom")
			})
		})
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestWithTransactionResult(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	// the dataset delete path: count orphaned rules, then delete, atomically
	deleteDataset := func(f *pgFixture) (int, error) {
		return services.WithTransactionResult(ctx, f.txMgr, func(ctx context.Context, tx repositories.Transaction) (int, error) {
			rules, err := f.rules.WithTx(tx).GetByDatasetID(ctx, id)
			if err != nil {
				return 0, err
			}
			if err := f.datasets.WithTx(tx).Delete(ctx, id); err != nil {
				return 0, err
			}
			return len(rules), nil
		})
	}

	t.Run("commits and returns the count", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery("FROM rules WHERE dataset_id").WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		f.mock.ExpectExec("DELETE FROM datasets").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		n, err := deleteDataset(f)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("missing dataset rolls back", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectQuery("FROM rules WHERE dataset_id").WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		f.mock.ExpectExec("DELETE FROM datasets").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectRollback()

		_, err := deleteDataset(f)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		f := newPGFixture(t)
		f.mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		n, err := deleteDataset(f)
		require.Error(t, err)
		assert.Zero(t, n)
	})
}
