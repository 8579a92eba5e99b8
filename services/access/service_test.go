package access

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories/blobstore"
	"github.com/upb/dataguardian/repositories/memory"
	"github.com/upb/dataguardian/services"
	"github.com/upb/dataguardian/services/datasets"
	"github.com/upb/dataguardian/services/evaluator"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/services/schema"
	"github.com/upb/dataguardian/services/streams"
	"github.com/upb/dataguardian/services/tokens"
	"go.uber.org/zap"
)

const meterCSV = "name,email,city,kwh,date\n" +
	"Ana,ana@x.org,Cali,12.5,2024-01-01\n" +
	"Luis,luis@x.org,Bogota,9,2024-01-02\n" +
	"Eva,eva@x.org,Cali,3,2024-01-03\n" +
	"Juan,juan@x.org,Medellin,7.25,2024-01-04\n"

type recordedEvents struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *recordedEvents) Record(_ context.Context, e *models.AuditEvent) *models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return e
}

func (r *recordedEvents) ofType(t models.AuditEventType) []*models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	datasets *datasets.Service
	rules    *rules.Service
	streams  *streams.Service
	tokens   *tokens.Service
	audit    *recordedEvents
	dataset  *models.Dataset
	stream   *models.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	nop := zap.NewNop()

	policy := config.DefaultPrivacyPolicy()
	policy.PreviewLimit = 2
	repos := memory.NewRepositories()
	rec := &recordedEvents{}
	fake := clock.NewFake(time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC))

	f := &fixture{audit: rec}
	f.datasets = datasets.NewService(repos, blobstore.NewMemory(), schema.NewInferencer(policy), policy, rec, fake, nop)
	f.rules = rules.NewService(repos.Rules, repos.Datasets, rules.NewValidator(policy),
		rules.NewRuleCache(policy.RuleCacheSize, policy.RuleCacheTTL), rec, fake, nop)
	f.streams = streams.NewService(repos.Streams, f.rules, rec, fake, nop)
	f.tokens = tokens.NewService(repos.Tokens, f.streams, rec, fake, nop)
	f.svc = NewService(f.tokens, f.streams, f.rules, f.datasets, evaluator.New(nop), rec, policy.PreviewLimit, nop)

	var err error
	f.dataset, err = f.datasets.Upload(ctx, "meters", models.DatasetOriginUpload, strings.NewReader(meterCSV))
	require.NoError(t, err)

	rule, err := f.rules.Create(ctx, rules.Input{
		Name:       "consumption by city",
		DatasetID:  f.dataset.ID,
		Fields:     []string{"city", "kwh"},
		Filters:    []models.Filter{{Field: "kwh", Op: models.FilterOpGTE, Value: 5}},
		TTLMinutes: 60,
	})
	require.NoError(t, err)

	f.stream, err = f.streams.Create(ctx, streams.CreateInput{RuleID: rule.ID})
	require.NoError(t, err)
	return f
}

func (f *fixture) issue(t *testing.T, scope ...models.TokenScope) string {
	t.Helper()
	token, err := f.tokens.Issue(context.Background(), tokens.IssueInput{StreamID: f.stream.ID, Scope: scope})
	require.NoError(t, err)
	return token.Secret
}

func TestService_Read(t *testing.T) {
	ctx := context.Background()

	t.Run("evaluates the stream", func(t *testing.T) {
		f := newFixture(t)
		secret := f.issue(t)

		result, err := f.svc.Read(ctx, secret, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"city", "kwh"}, result.Data.Columns)
		assert.Equal(t, [][]any{{"Cali", 12.5}, {"Bogota", 9.0}, {"Medellin", 7.25}}, result.Data.Rows)
		assert.Equal(t, int64(1), result.Stream.AccessCount)

		accessed := f.audit.ofType(models.AuditStreamAccessed)
		require.Len(t, accessed, 1)
		assert.Equal(t, models.ActorApp, accessed[0].Actor)
		assert.Equal(t, 3, accessed[0].Meta["rows"])
		assert.Len(t, f.audit.ofType(models.AuditTokenUsed), 1)
	})

	t.Run("limit", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.svc.Read(ctx, f.issue(t), 1)
		require.NoError(t, err)
		assert.Len(t, result.Data.Rows, 1)
	})

	t.Run("revoked stream", func(t *testing.T) {
		f := newFixture(t)
		secret := f.issue(t)
		_, err := f.streams.Revoke(ctx, f.stream.ID)
		require.NoError(t, err)

		_, err = f.svc.Read(ctx, secret, 0)
		assert.True(t, services.IsTokenRevokedError(err))
		assert.Empty(t, f.audit.ofType(models.AuditStreamAccessed))
	})

	t.Run("dataset deleted fails closed", func(t *testing.T) {
		f := newFixture(t)
		secret := f.issue(t)
		require.NoError(t, f.datasets.Delete(ctx, f.dataset.ID))

		_, err := f.svc.Read(ctx, secret, 0)
		assert.True(t, services.IsEvaluationError(err))
		assert.False(t, services.IsInvalidRuleError(err))

		failed := f.audit.ofType(models.AuditEvaluationFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, models.SeverityWarning, failed[0].Severity)
		assert.Equal(t, string(services.ErrorTypeEvaluation), failed[0].Meta["error"])
		assert.Empty(t, f.audit.ofType(models.AuditStreamAccessed))
	})

	t.Run("purged source fails closed", func(t *testing.T) {
		f := newFixture(t)
		secret := f.issue(t)
		_, err := f.datasets.PurgeSource(ctx, f.dataset.ID, "test")
		require.NoError(t, err)

		_, err = f.svc.Read(ctx, secret, 0)
		assert.True(t, services.IsNotFoundError(err))
		assert.Len(t, f.audit.ofType(models.AuditEvaluationFailed), 1)
	})
}

func TestService_Preview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.svc.Preview(ctx, f.stream.ID)
	require.NoError(t, err)
	assert.Len(t, result.Data.Rows, 2)
	assert.Equal(t, int64(0), result.Stream.AccessCount)
	assert.Empty(t, f.audit.ofType(models.AuditTokenUsed))
	assert.Empty(t, f.audit.ofType(models.AuditStreamAccessed))

	_, err = f.streams.Revoke(ctx, f.stream.ID)
	require.NoError(t, err)
	_, err = f.svc.Preview(ctx, f.stream.ID)
	assert.True(t, services.IsStreamNotActiveError(err))
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("csv", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.svc.Export(ctx, f.issue(t, models.ScopeExport), FormatCSV)
		require.NoError(t, err)

		assert.Equal(t, "text/csv", doc.ContentType)
		assert.Equal(t, "stream-"+f.stream.ID.String()+".csv", doc.Filename)
		assert.Equal(t, "city,kwh\nCali,12.5\nBogota,9\nMedellin,7.25\n", string(doc.Body))
		assert.Len(t, f.audit.ofType(models.AuditStreamExported), 1)
	})

	t.Run("json", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.svc.Export(ctx, f.issue(t, models.ScopeRead, models.ScopeExport), FormatJSON)
		require.NoError(t, err)

		var out jsonExport
		require.NoError(t, json.Unmarshal(doc.Body, &out))
		assert.Equal(t, f.stream.ID.String(), out.StreamID)
		require.Len(t, out.Rows, 3)
		assert.Equal(t, "Cali", out.Rows[0]["city"])
		assert.Equal(t, 12.5, out.Rows[0]["kwh"])
	})

	t.Run("read-only token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Export(ctx, f.issue(t), FormatCSV)
		assert.True(t, services.IsForbiddenError(err))
		assert.Empty(t, f.audit.ofType(models.AuditStreamExported))
	})

	t.Run("unsupported format keeps the token", func(t *testing.T) {
		f := newFixture(t)
		secret := f.issue(t, models.ScopeExport)

		_, err := f.svc.Export(ctx, secret, "xlsx")
		assert.True(t, services.IsValidationError(err))

		tokens, err := f.tokens.ListByStream(ctx, f.stream.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, int64(0), tokens[0].AccessCount)
	})
}
