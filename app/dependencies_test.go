package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/auth"
	"github.com/upb/dataguardian/models"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/services/streams"
	"github.com/upb/dataguardian/services/tokens"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{ShutdownTimeout: time.Second},
		Store:       config.StoreConfig{Driver: config.StoreDriverMemory, OpTimeout: time.Second},
		Blob:        config.BlobConfig{Backend: config.BlobBackendMemory},
		Audit:       config.AuditConfig{Capacity: 100, Sink: config.AuditSinkMemory},
		Auth:        config.AuthConfig{Enabled: true, JWTSecret: "test-secret", Issuer: "dataguardian", TokenTTL: time.Hour},
		Privacy:     config.DefaultPrivacyPolicy(),
		Observability: config.ObservabilityConfig{
			LogLevel: "debug",
		},
	}
}

const csvSource = "name,city,kwh\nAna,Cali,12\nLuis,Bogota,9\n"

// exercise runs one upload-to-read cycle through the wired services
func exercise(t *testing.T, deps *Dependencies) {
	t.Helper()
	ctx := context.Background()

	ds, err := deps.Datasets.Upload(ctx, "meters", models.DatasetOriginUpload, strings.NewReader(csvSource))
	require.NoError(t, err)

	rule, err := deps.Rules.Create(ctx, rules.Input{Name: "by city", DatasetID: ds.ID, Fields: []string{"city", "kwh"}, TTLMinutes: 10})
	require.NoError(t, err)

	stream, err := deps.Streams.Create(ctx, streams.CreateInput{RuleID: rule.ID})
	require.NoError(t, err)

	token, err := deps.Tokens.Issue(ctx, tokens.IssueInput{StreamID: stream.ID})
	require.NoError(t, err)

	result, err := deps.Access.Read(ctx, token.Secret, 0)
	require.NoError(t, err)
	assert.Len(t, result.Data.Rows, 2)

	events, err := deps.Audit.List(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestNewDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("memory store", func(t *testing.T) {
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Redis)
		assert.Empty(t, deps.HealthChecks())
		assert.NotNil(t, deps.Issuer)
		exercise(t, deps)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("sqlite store with os blobs", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testConfig(t)
		cfg.Store.Driver = config.StoreDriverSQLite
		cfg.Store.SQLitePath = filepath.Join(dir, "guardian.db")
		cfg.Blob = config.BlobConfig{Backend: config.BlobBackendOS, DataDir: filepath.Join(dir, "blobs")}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		exercise(t, deps)

		assert.FileExists(t, cfg.Store.SQLitePath)
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis audit sink", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Audit.Sink = config.AuditSinkRedis
		cfg.Audit.RedisAddr = mr.Addr()
		cfg.Audit.RedisKey = "test:audit"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Redis)
		assert.Contains(t, deps.HealthChecks(), "redis")

		exercise(t, deps)
		n, err := mr.List("test:audit")
		require.NoError(t, err)
		assert.NotEmpty(t, n)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unreachable redis fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Audit.Sink = config.AuditSinkRedis
		cfg.Audit.RedisAddr = "127.0.0.1:1"

		_, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("auth disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.Enabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, deps.Issuer)
		assert.NotNil(t, deps.AuthMiddleware)
	})

	t.Run("ephemeral secret when none configured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Issuer)

		token, err := deps.Issuer.Mint("alice", auth.RoleCitizen, time.Minute)
		require.NoError(t, err)
		_, err = deps.Issuer.Validate(token)
		assert.NoError(t, err)
	})
}
