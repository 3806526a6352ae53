package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Audit sinks
const (
	AuditSinkMemory   = "memory"
	AuditSinkDatabase = "database"
	AuditSinkFile     = "file"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Audit configuration
	Audit AuditConfig

	// PolicyFile overrides the built-in role policies when set
	PolicyFile string

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Per-actor request limits
	RateLimit RateLimitConfig
}

// RateLimitConfig bounds requests per actor. The limiter is shared through
// Redis when STOCKROOM_REDIS_URL is set.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Burst    int
}

// AuditConfig holds audit recording settings
type AuditConfig struct {
	// Sink is memory, database (the storage backend's database) or file
	Sink string
	// Mirror optionally receives a copy of every record. Queries are
	// answered by Sink.
	Mirror string

	// File sink
	FilePath     string
	FileMaxSize  int64
	FileMaxFiles int

	// Async recorder
	Shards       int
	QueueSize    int
	WriteTimeout time.Duration

	Archive ArchiveConfig
}

// Sinks lists the primary sink followed by the mirror, if any
func (a AuditConfig) Sinks() []string {
	if a.Mirror == "" {
		return []string{a.Sink}
	}
	return []string{a.Sink, a.Mirror}
}

// ArchiveConfig holds the scheduled S3 export settings
type ArchiveConfig struct {
	Enabled       bool
	Schedule      string        // cron spec
	Window        time.Duration // range exported per run, ending at run time
	Organizations []string      // organizations whose records are archived
	S3            audit.S3Config
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool    // Use insecure gRPC connection
	OTelSampleRatio    float64 // Fraction of traces kept
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads STOCKROOM_* environment variables and validates the result
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Audit:         loadAuditConfig(),
		PolicyFile:    envString("STOCKROOM_POLICY_FILE", ""),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            envString("STOCKROOM_HOST", "0.0.0.0"),
		Port:            envString("STOCKROOM_PORT", "8080"),
		ReadTimeout:     envDuration("STOCKROOM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    envDuration("STOCKROOM_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     envDuration("STOCKROOM_IDLE_TIMEOUT", time.Minute),
		ShutdownTimeout: envDuration("STOCKROOM_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      envString("STOCKROOM_HEALTH_PORT", "9090"),
		RateLimit: RateLimitConfig{
			Enabled:  envBool("STOCKROOM_RATE_LIMIT_ENABLED", false),
			Requests: envInt("STOCKROOM_RATE_LIMIT_REQUESTS", 1000),
			Window:   envDuration("STOCKROOM_RATE_LIMIT_WINDOW", time.Minute),
			Burst:    envInt("STOCKROOM_RATE_LIMIT_BURST", 50),
		},
	}
}

// loadStorageConfig starts from storage.DefaultConfig and overrides only the
// settings present in the environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Type = envString("STOCKROOM_STORAGE_TYPE", cfg.Type)
	cfg.OperationTimeout = envPositive("STOCKROOM_STORAGE_TIMEOUT", cfg.OperationTimeout, time.ParseDuration)

	cfg.PostgresURL = envString("STOCKROOM_POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresMaxConns = envPositive("STOCKROOM_POSTGRES_MAX_CONNS", cfg.PostgresMaxConns, strconv.Atoi)
	cfg.PostgresMinConns = envPositive("STOCKROOM_POSTGRES_MIN_CONNS", cfg.PostgresMinConns, strconv.Atoi)
	cfg.SQLitePath = envString("STOCKROOM_SQLITE_PATH", cfg.SQLitePath)
	cfg.MongoURI = envString("STOCKROOM_MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = envString("STOCKROOM_MONGO_DATABASE", cfg.MongoDatabase)

	cfg.RedisURL = envString("STOCKROOM_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = envString("STOCKROOM_REDIS_PASSWORD", cfg.RedisPassword)
	if db := envInt("STOCKROOM_REDIS_DB", -1); db >= 0 {
		cfg.RedisDB = db
	}
	cfg.RedisMaxRetries = envPositive("STOCKROOM_REDIS_MAX_RETRIES", cfg.RedisMaxRetries, strconv.Atoi)
	cfg.RedisPoolSize = envPositive("STOCKROOM_REDIS_POOL_SIZE", cfg.RedisPoolSize, strconv.Atoi)

	cfg.CacheEnabled = envBool("STOCKROOM_CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = envPositive("STOCKROOM_CACHE_TTL", cfg.CacheTTL, time.ParseDuration)
	cfg.L1CacheSize = envPositive("STOCKROOM_L1_CACHE_SIZE", cfg.L1CacheSize, strconv.Atoi)
	return cfg
}

func loadAuditConfig() AuditConfig {
	fileDefaults := audit.DefaultFileStoreConfig()
	return AuditConfig{
		Sink:         strings.ToLower(envString("STOCKROOM_AUDIT_SINK", AuditSinkMemory)),
		Mirror:       strings.ToLower(envString("STOCKROOM_AUDIT_MIRROR", "")),
		FilePath:     envString("STOCKROOM_AUDIT_FILE_PATH", fileDefaults.BasePath),
		FileMaxSize:  env("STOCKROOM_AUDIT_FILE_MAX_SIZE", fileDefaults.MaxSize, parseInt64),
		FileMaxFiles: envInt("STOCKROOM_AUDIT_FILE_MAX_FILES", fileDefaults.MaxFiles),
		Shards:       envInt("STOCKROOM_AUDIT_SHARDS", 4),
		QueueSize:    envInt("STOCKROOM_AUDIT_QUEUE_SIZE", 1024),
		WriteTimeout: envDuration("STOCKROOM_AUDIT_WRITE_TIMEOUT", 5*time.Second),
		Archive: ArchiveConfig{
			Enabled:       envBool("STOCKROOM_AUDIT_ARCHIVE_ENABLED", false),
			Schedule:      envString("STOCKROOM_AUDIT_ARCHIVE_SCHEDULE", "@daily"),
			Window:        envDuration("STOCKROOM_AUDIT_ARCHIVE_WINDOW", 24*time.Hour),
			Organizations: envList("STOCKROOM_AUDIT_ARCHIVE_ORGS"),
			S3: audit.S3Config{
				Endpoint:     envString("STOCKROOM_S3_ENDPOINT", ""),
				Region:       envString("STOCKROOM_S3_REGION", "us-east-1"),
				Bucket:       envString("STOCKROOM_S3_BUCKET", ""),
				Prefix:       envString("STOCKROOM_S3_PREFIX", "audit"),
				AccessKey:    envString("STOCKROOM_S3_ACCESS_KEY", ""),
				SecretKey:    envString("STOCKROOM_S3_SECRET_KEY", ""),
				UsePathStyle: envBool("STOCKROOM_S3_USE_PATH_STYLE", false),
			},
		},
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(envString("STOCKROOM_LOG_LEVEL", "info")),
		MetricsEnabled:     envBool("STOCKROOM_METRICS_ENABLED", true),
		OTelEnabled:        envBool("STOCKROOM_OTEL_ENABLED", false),
		OTelEndpoint:       envString("STOCKROOM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    envString("STOCKROOM_OTEL_SERVICE_NAME", "stockroom"),
		OTelServiceVersion: envString("STOCKROOM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       envBool("STOCKROOM_OTEL_INSECURE", true),
		OTelSampleRatio:    env("STOCKROOM_OTEL_SAMPLE_RATIO", 1.0, parseFloat),
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	srv := c.Server
	switch {
	case srv.Port == "":
		fail("server port is required")
	case srv.HealthPort == "":
		fail("health port is required")
	case srv.Port == srv.HealthPort:
		fail("server port and health port must be different")
	}
	if srv.RateLimit.Enabled && (srv.RateLimit.Requests <= 0 || srv.RateLimit.Window <= 0) {
		fail("rate limit requests and window must be positive")
	}

	st := c.Storage
	switch st.Type {
	case storage.TypeMemory:
	case storage.TypePostgres:
		if st.PostgresURL == "" {
			fail("postgres URL is required for postgres storage")
		}
	case storage.TypeSQLite:
		if st.SQLitePath == "" {
			fail("sqlite path is required for sqlite storage")
		}
	case storage.TypeMongo:
		if st.MongoURI == "" || st.MongoDatabase == "" {
			fail("mongo URI and database are required for mongo storage")
		}
	default:
		fail("invalid storage type %q (must be memory, postgres, sqlite, or mongo)", st.Type)
	}

	au := c.Audit
	for _, sink := range au.Sinks() {
		switch sink {
		case AuditSinkMemory:
		case AuditSinkDatabase:
			if st.Type != storage.TypePostgres && st.Type != storage.TypeSQLite {
				fail("database audit sink requires postgres or sqlite storage")
			}
		case AuditSinkFile:
			if au.FilePath == "" {
				fail("audit file path is required for file audit sink")
			}
		default:
			fail("invalid audit sink %q (must be memory, database, or file)", sink)
		}
	}
	if au.Mirror != "" && au.Mirror == au.Sink {
		fail("audit mirror must differ from the primary sink")
	}
	if au.Shards <= 0 || au.QueueSize <= 0 {
		fail("audit shards and queue size must be positive")
	}
	if ar := au.Archive; ar.Enabled {
		if ar.S3.Bucket == "" {
			fail("S3 bucket is required when audit archiving is enabled")
		}
		if ar.Window <= 0 {
			fail("audit archive window must be positive")
		}
		if len(ar.Organizations) == 0 {
			fail("audit archiving requires at least one organization")
		}
	}

	if obs := c.Observability; obs.OTelEnabled {
		if obs.OTelEndpoint == "" || obs.OTelServiceName == "" {
			fail("OpenTelemetry endpoint and service name are required when OTel is enabled")
		}
		if obs.OTelSampleRatio < 0 || obs.OTelSampleRatio > 1 {
			fail("OpenTelemetry sample ratio must be within [0, 1]")
		}
	}

	return errors.Join(errs...)
}

// OTelConfig converts the observability settings for observability.InitOTel
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// env parses key, falling back to def when the variable is unset or
// malformed
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

// envPositive is env for numeric settings where zero or less means unset
func envPositive[T int | int64 | time.Duration](key string, def T, parse func(string) (T, error)) T {
	if v := env(key, def, parse); v > 0 {
		return v
	}
	return def
}

func envString(key, def string) string {
	return env(key, def, func(s string) (string, error) { return s, nil })
}

func envBool(key string, def bool) bool { return env(key, def, strconv.ParseBool) }
func envInt(key string, def int) int { return env(key, def, strconv.Atoi) }
func envDuration(key string, def time.Duration) time.Duration {
	return env(key, def, time.ParseDuration)
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// envList splits a comma separated variable, dropping blanks
func envList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
