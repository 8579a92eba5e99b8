package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
				assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
				assert.Equal(t, BlobBackendOS, cfg.Blob.Backend)
				assert.Equal(t, 1000, cfg.Audit.Capacity)
				assert.Equal(t, AuditSinkMemory, cfg.Audit.Sink)
				assert.True(t, cfg.Auth.Enabled)
				assert.Equal(t, time.Duration(0), cfg.Cleanup.Interval)
				assert.Equal(t, 100, cfg.Privacy.SampleSize)
			},
		},
		{
			name: "postgres store with archive",
			envVars: map[string]string{
				"STORE_DRIVER":  "postgres",
				"DB_HOST":       "db.internal",
				"DB_PORT":       "5433",
				"AUDIT_ARCHIVE": "true",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
				assert.Equal(t, "db.internal", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.True(t, cfg.Audit.Archive)
			},
		},
		{
			name: "database url takes precedence",
			envVars: map[string]string{
				"STORE_DRIVER": "postgres",
				"DATABASE_URL": "postgres://u:secret@db:6543/guardian?sslmode=disable",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:secret@db:6543/guardian?sslmode=disable", cfg.Database.DSN())
				assert.Equal(t, "host=db port=6543 database=guardian", cfg.Database.LogString())
			},
		},
		{
			name: "redis audit sink and cleanup",
			envVars: map[string]string{
				"AUDIT_SINK":       "redis",
				"REDIS_ADDR":       "cache:6379",
				"AUDIT_CAPACITY":   "50",
				"CLEANUP_INTERVAL": "30s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, AuditSinkRedis, cfg.Audit.Sink)
				assert.Equal(t, "cache:6379", cfg.Audit.RedisAddr)
				assert.Equal(t, 50, cfg.Audit.Capacity)
				assert.Equal(t, 30*time.Second, cfg.Cleanup.Interval)
			},
		},
		{
			name: "PORT overrides SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9001",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9001, cfg.Server.Port)
				assert.Equal(t, "0.0.0.0:9001", cfg.Server.Address())
			},
		},
		{
			name:    "unknown store driver",
			envVars: map[string]string{"STORE_DRIVER": "mongo"},
			wantErr: true,
		},
		{
			name:    "unknown audit sink",
			envVars: map[string]string{"AUDIT_SINK": "kafka"},
			wantErr: true,
		},
		{
			name:    "archive requires postgres",
			envVars: map[string]string{"AUDIT_ARCHIVE": "true"},
			wantErr: true,
		},
		{
			name:    "production requires jwt secret",
			envVars: map[string]string{"ENVIRONMENT": "production"},
			wantErr: true,
		},
		{
			name: "production with secret",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"JWT_SECRET":  "s3cret",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
			},
		},
		{
			name:    "missing policy file",
			envVars: map[string]string{"PRIVACY_POLICY_FILE": "/nonexistent/policy.yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadPrivacyPolicy(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		p, err := LoadPrivacyPolicy("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPrivacyPolicy(), p)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		content := "piiLexicon: [\" Email \", dni]\nsampleSize: 20\nallowLexicographic: true\ndetectValuePII: true\nruleCacheTTL: 1m\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		p, err := LoadPrivacyPolicy(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"email", "dni"}, p.PIILexicon)
		assert.Equal(t, 20, p.SampleSize)
		assert.True(t, p.AllowLexicographic)
		assert.True(t, p.DetectValuePII)
		assert.Equal(t, time.Minute, p.RuleCacheTTL)
		assert.Equal(t, 10, p.MaxKAnonymity)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sampleSize: [oops"), 0o600))

		_, err := LoadPrivacyPolicy(path)
		assert.Error(t, err)
	})
}

func TestPrivacyPolicy_Validate(t *testing.T) {
	p := DefaultPrivacyPolicy()
	require.NoError(t, p.Validate())

	p.SampleSize = 0
	assert.Error(t, p.Validate())

	p = DefaultPrivacyPolicy()
	p.MaxUploadBytes = 0
	assert.Error(t, p.Validate())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_LIST", " a, b ,,c ")

	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TEST_BAD_INT", 1))
	assert.Equal(t, 7, getEnvAsInt("TEST_UNSET_INT", 7))
	assert.False(t, getEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsList("TEST_LIST", nil))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET", "fallback"))
}
