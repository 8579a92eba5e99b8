package cleanup

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/repositories/blobstore"
	"github.com/upb/dataguardian/repositories/memory"
	"github.com/upb/dataguardian/services/audit"
	"github.com/upb/dataguardian/services/datasets"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/services/schema"
	"github.com/upb/dataguardian/services/streams"
	"github.com/upb/dataguardian/services/tokens"
	"go.uber.org/zap"
)

type fixture struct {
	sweeper  *Sweeper
	recorder *audit.Recorder
	clock    *clock.Fake
	blobs    *blobstore.Store
	datasets *datasets.Service
	rules    *rules.Service
	streams  *streams.Service
	tokens   *tokens.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nop := zap.NewNop()

	policy := config.DefaultPrivacyPolicy()
	repos := memory.NewRepositories()
	fake := clock.NewFake(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	rec := audit.NewRecorder(audit.NewMemorySink(500), nop, audit.WithClock(fake))

	f := &fixture{recorder: rec, clock: fake, blobs: blobstore.NewMemory()}
	f.datasets = datasets.NewService(repos, f.blobs, schema.NewInferencer(policy), policy, rec, fake, nop)
	f.rules = rules.NewService(repos.Rules, repos.Datasets, rules.NewValidator(policy),
		rules.NewRuleCache(policy.RuleCacheSize, policy.RuleCacheTTL), rec, fake, nop)
	f.streams = streams.NewService(repos.Streams, f.rules, rec, fake, nop)
	f.tokens = tokens.NewService(repos.Tokens, f.streams, rec, fake, nop)
	f.sweeper = NewSweeper(f.streams, f.tokens, f.rules, f.datasets, rec, fake, nop)
	return f
}

func (f *fixture) dataset(t *testing.T, csv string) *models.Dataset {
	t.Helper()
	ds, err := f.datasets.Upload(context.Background(), "ds", models.DatasetOriginUpload, strings.NewReader(csv))
	require.NoError(t, err)
	return ds
}

func (f *fixture) stream(t *testing.T, ds *models.Dataset, ttlMinutes int) *models.Stream {
	t.Helper()
	ctx := context.Background()
	rule, err := f.rules.Create(ctx, rules.Input{Name: "r", DatasetID: ds.ID, Fields: []string{"kwh"}, TTLMinutes: ttlMinutes})
	require.NoError(t, err)
	st, err := f.streams.Create(ctx, streams.CreateInput{RuleID: rule.ID})
	require.NoError(t, err)
	return st
}

func (f *fixture) events(t *testing.T, typ models.AuditEventType) []*models.AuditEvent {
	t.Helper()
	all, err := f.recorder.List(context.Background(), 0)
	require.NoError(t, err)
	var out []*models.AuditEvent
	for _, e := range all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) sourceExists(t *testing.T, ds *models.Dataset) bool {
	t.Helper()
	ok, err := f.blobs.Exists(context.Background(), ds.BlobKey())
	require.NoError(t, err)
	return ok
}

func TestSweeper_Run(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := f.dataset(t, "kwh\n1\n2\n")
	live := f.dataset(t, "kwh\n3\n4\n")
	unused := f.dataset(t, "kwh\n5\n6\n")

	short := f.stream(t, stale, 10)
	long := f.stream(t, live, 120)

	staleToken, err := f.tokens.Issue(ctx, tokens.IssueInput{StreamID: short.ID})
	require.NoError(t, err)
	soon := f.clock.Now().Add(5 * time.Minute)
	expiringToken, err := f.tokens.Issue(ctx, tokens.IssueInput{StreamID: long.ID, ExpiresAt: &soon})
	require.NoError(t, err)
	liveToken, err := f.tokens.Issue(ctx, tokens.IssueInput{StreamID: long.ID})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)

	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExpiredStreams)
	assert.Equal(t, 2, report.RevokedTokens)
	assert.Equal(t, 1, report.PurgedSources)
	assert.Equal(t, f.clock.Now(), report.Timestamp)

	for _, tok := range []*models.Token{staleToken, expiringToken} {
		got, err := f.tokens.Get(ctx, tok.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	}
	got, err := f.tokens.Get(ctx, liveToken.ID)
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	assert.False(t, f.sourceExists(t, stale))
	assert.True(t, f.sourceExists(t, live))
	assert.True(t, f.sourceExists(t, unused), "datasets without streams are kept")

	revoked := f.events(t, models.AuditTokenRevoked)
	require.Len(t, revoked, 2)
	for _, e := range revoked {
		assert.Equal(t, models.ActorSystem, e.Actor)
	}
	assert.Len(t, f.events(t, models.AuditDatasetPurged), 1)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		report, err := f.sweeper.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.ExpiredStreams)
		assert.Zero(t, report.RevokedTokens)
		assert.Zero(t, report.PurgedSources)

		assert.Len(t, f.events(t, models.AuditStreamExpired), 1)
		assert.Len(t, f.events(t, models.AuditTokenRevoked), 2)

		completed := f.events(t, models.AuditCleanupCompleted)
		require.Len(t, completed, 2)
		assert.Equal(t, 0, completed[0].Meta["revoked_tokens"])
	})
}

func TestSweeper_SkipsOrphanedStreams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ds := f.dataset(t, "kwh\n1\n")
	st := f.stream(t, ds, 10)
	require.NoError(t, f.rules.Delete(ctx, st.RuleID))

	f.clock.Advance(time.Hour)
	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExpiredStreams)
	assert.Zero(t, report.PurgedSources)
	assert.True(t, f.sourceExists(t, ds))
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.sweeper.Start(0))
	assert.Error(t, f.sweeper.Stop(), "stop before start")

	require.NoError(t, f.sweeper.Start(5*time.Millisecond))
	assert.Error(t, f.sweeper.Start(5*time.Millisecond), "double start")

	require.Eventually(t, func() bool {
		return len(f.events(t, models.AuditCleanupCompleted)) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.sweeper.Stop())
	n := len(f.events(t, models.AuditCleanupCompleted))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(f.events(t, models.AuditCleanupCompleted)))

	require.NoError(t, f.sweeper.Start(5*time.Millisecond), "restart after stop")
	require.NoError(t, f.sweeper.Stop())
}
