// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Loggers are logrus loggers with the JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("Warehouse created")
//
// Request-scoped logging:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.RequestLogger(ctx, logger).Warn("Slow storage call")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.AccessDecisionsTotal.WithLabelValues("warehouse", "read", "allowed", "").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(adapter, redisClient, auditRecorder, version)
//	status := checker.Check(ctx)
//
// Storage failures make the service unhealthy. Redis outages and lost audit
// records only degrade it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "stockroom",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
