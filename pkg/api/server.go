package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/ratelimit"
)

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 1 << 20

// Options wires the server's collaborators. Health, Metrics and Registry
// are optional.
type Options struct {
	Service      *inventory.Service
	Directory    *inventory.Directory
	Health       *observability.HealthChecker
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry
	Logger       logrus.FieldLogger
	ServiceName  string
	MaxBodyBytes int64
	// RateLimiter bounds requests per actor when set
	RateLimiter  ratelimit.Limiter
}

// Server is the HTTP front of the inventory service
type Server struct {
	service   *inventory.Service
	directory *inventory.Directory
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	registry  *prometheus.Registry
	limiter   ratelimit.Limiter
	logger    logrus.FieldLogger

	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "stockroom"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		service:   opts.Service,
		directory: opts.Directory,
		health:    opts.Health,
		metrics:   opts.Metrics,
		registry:  opts.Registry,
		limiter:   opts.RateLimiter,
		logger:    opts.Logger,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, opts.ServiceName) },
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	// Probes and metrics
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods(http.MethodGet)
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.actorMiddleware)
	if s.limiter != nil {
		v1.Use(ratelimit.Middleware(s.limiter, actorRateKey, s.logger))
	}

	// Organization
	v1.HandleFunc("/orgs/{org_id}", s.getOrganization).Methods(http.MethodGet)
	v1.HandleFunc("/orgs/{org_id}", s.updateOrganization).Methods(http.MethodPatch)
	v1.HandleFunc("/orgs/{org_id}", s.deleteOrganization).Methods(http.MethodDelete)

	// Audit trail
	v1.HandleFunc("/orgs/{org_id}/audit", s.queryAudit).Methods(http.MethodGet)

	// Users, warehouses and items
	collection := "/orgs/{org_id}/{collection:users|warehouses|items}"
	v1.HandleFunc(collection, s.listResources).Methods(http.MethodGet)
	v1.HandleFunc(collection, s.createResource).Methods(http.MethodPost)
	v1.HandleFunc(collection+"/{id}", s.getResource).Methods(http.MethodGet)
	v1.HandleFunc(collection+"/{id}", s.updateResource).Methods(http.MethodPatch)
	v1.HandleFunc(collection+"/{id}", s.deleteResource).Methods(http.MethodDelete)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
