package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/config"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
	"github.com/platinummonkey/stockroom/pkg/storage/cache"
	"github.com/platinummonkey/stockroom/pkg/storage/memory"
	"github.com/platinummonkey/stockroom/pkg/storage/mongostore"
	"github.com/platinummonkey/stockroom/pkg/storage/sqlstore"
)

// app holds the wired components shared by the subcommands
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics

	backend storage.Adapter // engine adapter, without cache
	adapter storage.Adapter // adapter used by the repository
	redis   *redis.Client

	auditStore audit.Store
	recorder   *audit.AsyncRecorder

	policies  *rbac.PolicyStore
	guard     *rbac.Guard
	repo      *inventory.Repository
	service   *inventory.Service
	directory *inventory.Directory
}

// newApp opens storage and the audit sink and wires the service layer.
// Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Observability.MetricsEnabled {
		a.metrics = observability.NewMetrics(a.registry)
	}

	if err := a.openStorage(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	if err := a.openAudit(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}

	policies := rbac.NewBuiltInPolicyStore()
	if cfg.PolicyFile != "" {
		var err error
		policies, err = rbac.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			a.close(context.Background())
			return nil, fmt.Errorf("failed to load policy file: %w", err)
		}
		logger.WithField("path", cfg.PolicyFile).Info("Loaded role policies")
	}
	a.policies = policies

	a.guard = rbac.NewGuard(policies, a.recorder,
		rbac.WithLogger(logger),
		rbac.WithMetrics(a.metrics))
	a.repo = inventory.NewRepository(a.adapter,
		inventory.WithRepositoryLogger(logger),
		inventory.WithRepositoryMetrics(a.metrics))
	a.service = inventory.NewService(a.guard, a.repo, a.auditStore,
		inventory.WithServiceLogger(logger))
	a.directory = inventory.NewDirectory(a.adapter)

	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	cfg := a.cfg.Storage
	logger := a.logger.WithField("storage", cfg.Type)

	switch cfg.Type {
	case storage.TypeMemory:
		a.backend = memory.New()
	case storage.TypePostgres, storage.TypeSQLite:
		store, err := sqlstore.Open(ctx, cfg, sqlstore.WithLogger(logger))
		if err != nil {
			return err
		}
		a.metrics.RegisterDB(store.DB(), string(cfg.Type))
		a.backend = store
	case storage.TypeMongo:
		store, err := mongostore.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		a.backend = store
	default:
		return fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
	a.adapter = a.backend

	// Redis backs the L2 cache and the shared rate limiter
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		a.redis = client
	}

	if cfg.CacheEnabled {
		a.adapter = cache.New(a.backend, cache.Options{
			Size:    cfg.L1CacheSize,
			TTL:     cfg.CacheTTL,
			Redis:   a.redis,
			Metrics: a.metrics,
			Logger:  logger,
		})
	}

	logger.WithField("cache", cfg.CacheEnabled).Info("Storage initialized")
	return nil
}

func (a *app) openAudit(ctx context.Context) error {
	cfg := a.cfg.Audit

	var stores []audit.Store
	for _, sink := range cfg.Sinks() {
		store, err := a.openAuditSink(ctx, sink)
		if err != nil {
			for _, opened := range stores {
				_ = opened.Close()
			}
			return fmt.Errorf("audit sink %s: %w", sink, err)
		}
		stores = append(stores, store)
	}
	if len(stores) == 1 {
		a.auditStore = stores[0]
	} else {
		multi, err := audit.NewMultiStore(stores...)
		if err != nil {
			return err
		}
		a.auditStore = multi
	}

	a.recorder = audit.NewAsyncRecorder(a.auditStore, audit.AsyncOptions{
		Shards:       cfg.Shards,
		QueueSize:    cfg.QueueSize,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
	a.logger.WithFields(logrus.Fields{
		"sink":   cfg.Sink,
		"mirror": cfg.Mirror,
	}).Info("Audit recorder initialized")
	return nil
}

func (a *app) openAuditSink(ctx context.Context, sink string) (audit.Store, error) {
	cfg := a.cfg.Audit

	switch sink {
	case config.AuditSinkMemory:
		return audit.NewMemoryStore(), nil
	case config.AuditSinkDatabase:
		store, ok := a.backend.(*sqlstore.Store)
		if !ok {
			return nil, fmt.Errorf("database audit sink requires a SQL storage backend")
		}
		dbStore, err := audit.NewDBStore(ctx, store.DB(), store.Dialect())
		if err != nil {
			return nil, err
		}
		return dbStore, nil
	case config.AuditSinkFile:
		fileCfg := audit.DefaultFileStoreConfig()
		fileCfg.BasePath = cfg.FilePath
		fileCfg.MaxSize = cfg.FileMaxSize
		fileCfg.MaxFiles = cfg.FileMaxFiles
		fileCfg.Logger = a.logger
		fileStore, err := audit.NewFileStore(fileCfg)
		if err != nil {
			return nil, err
		}
		return fileStore, nil
	}
	return nil, fmt.Errorf("unsupported audit sink %q", sink)
}

// close drains pending audit records before closing the stores they are
// written to
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close(ctx))
	}
	if a.auditStore != nil {
		errs = append(errs, a.auditStore.Close())
	}
	if a.adapter != nil {
		errs = append(errs, a.adapter.Close())
	} else if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
