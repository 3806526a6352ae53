package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/api"
	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/ratelimit"
)

// ServeCmd runs the API server and the health/metrics server
type ServeCmd struct {
	Port       string `help:"Override STOCKROOM_PORT."`
	HealthPort string `help:"Override STOCKROOM_HEALTH_PORT."`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	if s.Port != "" {
		cfg.Server.Port = s.Port
	}
	if s.HealthPort != "" {
		cfg.Server.HealthPort = s.HealthPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	otel, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	stopTelemetry := func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	}
	// abort flushes telemetry when startup fails after it was initialized
	abort := func(err error) error {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = stopTelemetry(flushCtx)
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return abort(err)
	}

	health := observability.NewHealthChecker(a.adapter, a.redis, a.recorder, globals.Version)
	limiter := a.rateLimiter(ctx)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(api.Options{
			Service:     a.service,
			Directory:   a.directory,
			Metrics:     a.metrics,
			Logger:      logger,
			ServiceName: cfg.Observability.OTelServiceName,
			RateLimiter: limiter,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	healthRouter.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	healthRouter.Handle("/metrics", observability.MetricsHandler(a.registry)).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)

	if cfg.Audit.Archive.Enabled {
		scheduler, err := a.scheduleArchive(ctx)
		if err != nil {
			a.close(context.Background())
			return abort(err)
		}
		scheduler.Start()
		shutdown.RegisterShutdownFunc("archive scheduler", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	shutdown.RegisterShutdownFunc("application", a.close)
	shutdown.RegisterShutdownFunc("telemetry", stopTelemetry)

	errCh := make(chan error, 2)
	serve := func(srv *http.Server, name string) {
		defer observability.RecoverPanic(logger, name)
		logger.WithField("addr", srv.Addr).Infof("Starting %s", name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s failed: %w", name, err)
		}
	}
	go serve(server, "API server")
	go serve(healthServer, "health server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := <-errCh; err != nil {
			logger.WithError(err).Error("Server stopped unexpectedly")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}

// rateLimiter returns the per-actor limiter, shared through Redis when a
// client is configured. Nil when rate limiting is disabled.
func (a *app) rateLimiter(ctx context.Context) ratelimit.Limiter {
	rl := a.cfg.Server.RateLimit
	if !rl.Enabled {
		return nil
	}
	limitCfg := ratelimit.Config{Requests: rl.Requests, Window: rl.Window, Burst: rl.Burst}
	if a.redis != nil {
		return ratelimit.NewRedisLimiter(a.redis, limitCfg, "stockroom:ratelimit")
	}
	limiter := ratelimit.NewMemoryLimiter(limitCfg)
	limiter.StartCleanup(ctx)
	return limiter
}

// scheduleArchive registers the periodic S3 export of the audit trail
func (a *app) scheduleArchive(ctx context.Context) (*cron.Cron, error) {
	archiveCfg := a.cfg.Audit.Archive

	client, err := audit.NewS3Client(ctx, archiveCfg.S3)
	if err != nil {
		return nil, err
	}
	archiver := audit.NewArchiver(a.auditStore, client, archiveCfg.S3.Bucket, archiveCfg.S3.Prefix, a.logger)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	orgs := func() []string { return archiveCfg.Organizations }
	if _, err := archiver.Schedule(scheduler, archiveCfg.Schedule, archiveCfg.Window, orgs); err != nil {
		return nil, fmt.Errorf("invalid archive schedule %q: %w", archiveCfg.Schedule, err)
	}

	a.logger.WithFields(logrus.Fields{
		"schedule":      archiveCfg.Schedule,
		"bucket":        archiveCfg.S3.Bucket,
		"organizations": len(archiveCfg.Organizations),
	}).Info("Audit archiving scheduled")
	return scheduler, nil
}
