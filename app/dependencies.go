package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/handlers"
	"github.com/upb/dataguardian/internal/auth"
	"github.com/upb/dataguardian/internal/clock"
	"github.com/upb/dataguardian/middleware"
	"github.com/upb/dataguardian/repositories"
	"github.com/upb/dataguardian/repositories/blobstore"
	"github.com/upb/dataguardian/repositories/memory"
	"github.com/upb/dataguardian/repositories/postgres"
	"github.com/upb/dataguardian/repositories/sqlite"
	"github.com/upb/dataguardian/services/access"
	"github.com/upb/dataguardian/services/audit"
	"github.com/upb/dataguardian/services/cleanup"
	"github.com/upb/dataguardian/services/datasets"
	"github.com/upb/dataguardian/services/evaluator"
	"github.com/upb/dataguardian/services/receipts"
	"github.com/upb/dataguardian/services/rules"
	"github.com/upb/dataguardian/services/schema"
	"github.com/upb/dataguardian/services/streams"
	"github.com/upb/dataguardian/services/tokens"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	Repos  *repositories.Repositories
	Blobs  repositories.BlobStore
	DB     *postgres.DB  // nil unless STORE_DRIVER=postgres
	Redis  *redis.Client // nil unless AUDIT_SINK=redis
	closer func() error

	// Audit
	Audit    *audit.Recorder
	Archiver *audit.Archiver

	// Services
	Inferencer *schema.Inferencer
	Datasets   *datasets.Service
	Rules      *rules.Service
	Streams    *streams.Service
	Tokens     *tokens.Service
	Access     *access.Service
	Receipts   *receipts.Service
	Sweeper    *cleanup.Sweeper

	// Auth
	Issuer                *auth.Issuer // nil when auth is disabled
	AuthMiddleware        *middleware.AuthMiddleware
	StreamTokenMiddleware *middleware.StreamTokenMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Clock:  clock.Real(),
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	if err := deps.initBlobs(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.String("audit_sink", cfg.Audit.Sink))
	return deps, nil
}

// initStore opens the configured record store and bounds every call with the op timeout
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	var repos *repositories.Repositories

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		if err := factory.GetDB().InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.DB = factory.GetDB()
		d.closer = factory.Close
		repos = factory.NewRepositories()

	case config.StoreDriverSQLite:
		r, closeFn, err := sqlite.NewRepositories(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		d.closer = closeFn
		repos = r
		d.Logger.Info("sqlite store opened", zap.String("path", cfg.Store.SQLitePath))

	default:
		repos = memory.NewRepositories()
		d.Logger.Warn("using in-memory record store, state is lost on restart")
	}

	d.Repos = repositories.WithTimeout(repos, cfg.Store.OpTimeout)
	return nil
}

func (d *Dependencies) initBlobs(cfg *config.Config) error {
	if cfg.Blob.Backend == config.BlobBackendMemory {
		d.Blobs = blobstore.NewMemory()
		return nil
	}
	store, err := blobstore.NewOS(cfg.Blob.DataDir)
	if err != nil {
		return err
	}
	d.Blobs = store
	return nil
}

// initAudit picks the retention sink and, with a postgres store, the durable archive
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	var sink audit.Sink = audit.NewMemorySink(cfg.Audit.Capacity)

	if cfg.Audit.Sink == config.AuditSinkRedis {
		client, err := audit.NewRedisClient(ctx, cfg.Audit.RedisAddr, cfg.Audit.RedisDB)
		if err != nil {
			return err
		}
		d.Redis = client
		sink = audit.NewRedisSink(client, cfg.Audit.RedisKey, cfg.Audit.Capacity)
	}

	opts := []audit.Option{audit.WithClock(d.Clock)}
	if cfg.Audit.Archive && d.Repos.AuditEvents != nil {
		archiver := audit.NewArchiver(d.Repos.AuditEvents, d.Logger, audit.ArchiverConfig{
			BufferSize:  cfg.Audit.BufferSize,
			WorkerCount: cfg.Audit.Workers,
			OpTimeout:   cfg.Store.OpTimeout,
		})
		if err := archiver.Start(); err != nil {
			return err
		}
		d.Archiver = archiver
		opts = append(opts, audit.WithArchiver(archiver))
	}

	d.Audit = audit.NewRecorder(sink, d.Logger, opts...)
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	policy := cfg.Privacy
	repos := d.Repos

	d.Inferencer = schema.NewInferencer(policy)
	d.Datasets = datasets.NewService(repos, d.Blobs, d.Inferencer, policy, d.Audit, d.Clock, d.Logger)
	d.Rules = rules.NewService(repos.Rules, repos.Datasets, rules.NewValidator(policy),
		rules.NewRuleCache(policy.RuleCacheSize, policy.RuleCacheTTL), d.Audit, d.Clock, d.Logger)
	d.Streams = streams.NewService(repos.Streams, d.Rules, d.Audit, d.Clock, d.Logger)
	d.Tokens = tokens.NewService(repos.Tokens, d.Streams, d.Audit, d.Clock, d.Logger)
	d.Access = access.NewService(d.Tokens, d.Streams, d.Rules, d.Datasets,
		evaluator.New(d.Logger), d.Audit, policy.PreviewLimit, d.Logger)
	d.Receipts = receipts.NewService(d.Streams, d.Rules, d.Datasets, d.Tokens, d.Audit, d.Audit, d.Clock, d.Logger)
	d.Sweeper = cleanup.NewSweeper(d.Streams, d.Tokens, d.Rules, d.Datasets, d.Audit, d.Clock, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	d.StreamTokenMiddleware = middleware.NewStreamTokenMiddleware(d.Logger)

	if !cfg.Auth.Enabled {
		d.Logger.Warn("actor auth disabled, every request runs as admin")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// only reachable outside production; config validation rejects it there
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		secret = hex.EncodeToString(b)
		d.Logger.Warn("JWT_SECRET not set, using an ephemeral secret; actor tokens will not survive a restart")
	}

	issuer, err := auth.NewIssuer(secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	d.Issuer = issuer
	d.AuthMiddleware = middleware.NewAuthMiddleware(issuer, d.Logger)
	return nil
}

// HealthChecks returns the dependencies readiness depends on
func (d *Dependencies) HealthChecks() map[string]handlers.Pinger {
	checks := make(map[string]handlers.Pinger)
	if d.DB != nil {
		checks["database"] = d.DB
	}
	if d.Redis != nil {
		checks["redis"] = redisPinger{d.Redis}
	}
	return checks
}

// HealthStats returns the runtime statistics readiness reports
func (d *Dependencies) HealthStats() map[string]handlers.StatsFunc {
	stats := make(map[string]handlers.StatsFunc)
	if d.Rules != nil {
		stats["rule_cache"] = func() any { return d.Rules.CacheStats() }
	}
	if d.Archiver != nil {
		stats["audit_archiver"] = func() any { return d.Archiver.Stats() }
	}
	if d.DB != nil {
		stats["database_pool"] = func() any { return d.DB.Stats() }
	}
	return stats
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close gracefully shuts down all dependencies. Safe on a partially built value.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Sweeper != nil {
		// not started is not an error here
		_ = d.Sweeper.Stop()
	}

	if d.Archiver != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Archiver.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain audit archive: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.closer != nil {
		if err := d.closer(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close record store: %w", err))
		} else {
			d.Logger.Info("record store closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
