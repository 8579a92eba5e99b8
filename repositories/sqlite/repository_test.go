package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories"
)

func newTestRepos(t *testing.T) *repositories.Repositories {
	t.Helper()
	repos, closeFn, err := NewRepositories(context.Background(), filepath.Join(t.TempDir(), "dataguardian_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return repos
}

func TestDatasetRoundTripAndDedup(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	now := time.Now().UTC().Truncate(time.Second)

	ds := models.NewDataset("census", models.DatasetOriginUpload, now)
	ds.ContentHash = "abc"
	ds.RowCount = 3
	ds.Schema = []models.Column{{Name: "email", Type: models.ColumnTypeString, PII: true}}
	ds.Stats = &models.DatasetStats{TotalRows: 3, NullCounts: map[string]int{"email": 0}}
	require.NoError(t, repos.Datasets.Create(ctx, ds))

	got, err := repos.Datasets.GetByContentHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)
	assert.True(t, got.Schema[0].PII)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 3, got.Stats.TotalRows)

	dup := models.NewDataset("copy", models.DatasetOriginUpload, now)
	dup.ContentHash = "abc"
	assert.ErrorIs(t, repos.Datasets.Create(ctx, dup), repositories.ErrDuplicate)

	require.NoError(t, repos.Datasets.Delete(ctx, ds.ID))
	_, err = repos.Datasets.GetByID(ctx, ds.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRuleUpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	rule := models.NewRule("adults", uuid.New(), []string{"age"}, 60, created)
	rule.Filters = []models.Filter{{Field: "age", Op: models.FilterOpGTE, Value: 18.0}}
	require.NoError(t, repos.Rules.Create(ctx, rule))

	rule.Name = "seniors"
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = created.Add(time.Hour)
	rule.Obfuscation = &models.Obfuscation{KAnonymity: 3, QuasiIdentifiers: []string{"age"}}
	require.NoError(t, repos.Rules.Update(ctx, rule))

	got, err := repos.Rules.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "seniors", got.Name)
	assert.True(t, got.CreatedAt.Equal(created))
	require.NotNil(t, got.Obfuscation)
	assert.Equal(t, 3, got.Obfuscation.KAnonymity)
	assert.Equal(t, 18.0, got.Filters[0].Value)

	byDataset, err := repos.Rules.GetByDatasetID(ctx, rule.DatasetID)
	require.NoError(t, err)
	assert.Len(t, byDataset, 1)
}

func TestStreamsAndTokens(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	now := time.Now().UTC().Truncate(time.Second)

	s := models.NewStream(uuid.New(), "partner", now, time.Hour)
	require.NoError(t, repos.Streams.Create(ctx, s))

	tok := &models.Token{
		ID: uuid.New(), StreamID: s.ID, Name: "t", SecretHash: "hash", Prefix: "dg_ab",
		Scope: []models.TokenScope{models.ScopeRead}, ExpiresAt: s.ExpiresAt, OneTime: true, CreatedAt: now,
	}

	err := repos.TxManager.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		return repos.Tokens.WithTx(tx).Create(ctx, tok)
	})
	require.NoError(t, err)

	tok.AccessCount = 1
	tok.LastUsed = &now
	require.NoError(t, repos.Tokens.Update(ctx, tok))

	got, err := repos.Tokens.GetByHash(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, got.Exhausted())
	assert.Equal(t, []models.TokenScope{models.ScopeRead}, got.Scope)

	s.Status = models.StreamStatusRevoked
	require.NoError(t, repos.Streams.Update(ctx, s))
	gotStream, err := repos.Streams.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusRevoked, gotStream.Status)

	missing := models.NewStream(uuid.New(), "x", now, time.Hour)
	assert.ErrorIs(t, repos.Streams.Update(ctx, missing), repositories.ErrNotFound)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	s := models.NewStream(uuid.New(), "s", time.Now().UTC(), time.Hour)

	err := repos.TxManager.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		require.NoError(t, repos.Streams.WithTx(tx).Create(ctx, s))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = repos.Streams.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
