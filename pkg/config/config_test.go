package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

func TestEnvString(t *testing.T) {
	t.Setenv("TEST_VAR", "custom")
	t.Setenv("TEST_VAR_BLANK", "   ")

	assert.Equal(t, "custom", envString("TEST_VAR", "default"))
	assert.Equal(t, "default", envString("TEST_VAR_NOT_SET", "default"))
	assert.Equal(t, "default", envString("TEST_VAR_BLANK", "default"))
}

func TestEnvTyped(t *testing.T) {
	t.Setenv("TEST_BOOL_TRUE", "TRUE")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	t.Setenv("TEST_BOOL_BAD", "maybe")
	t.Setenv("TEST_INT", " 42 ")
	t.Setenv("TEST_INT_BAD", "forty")
	t.Setenv("TEST_INT_ZERO", "0")
	t.Setenv("TEST_INT64", "9000000000")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_DURATION_BAD", "soon")
	t.Setenv("TEST_LIST", "org1, ,org2,")

	assert.True(t, envBool("TEST_BOOL_TRUE", false))
	assert.True(t, envBool("TEST_BOOL_ONE", false))
	assert.False(t, envBool("TEST_BOOL_FALSE", true))
	assert.True(t, envBool("TEST_BOOL_BAD", true))
	assert.True(t, envBool("TEST_BOOL_UNSET", true))

	assert.Equal(t, 42, envInt("TEST_INT", 1))
	assert.Equal(t, 1, envInt("TEST_INT_BAD", 1))
	assert.Equal(t, 7, envPositive("TEST_INT_ZERO", 7, strconv.Atoi))
	assert.Equal(t, int64(9000000000), env("TEST_INT64", 0, parseInt64))
	assert.Equal(t, 0.25, env("TEST_FLOAT", 1.0, parseFloat))

	assert.Equal(t, 90*time.Second, envDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, envDuration("TEST_DURATION_BAD", time.Second))

	assert.Equal(t, []string{"org1", "org2"}, envList("TEST_LIST"))
	assert.Nil(t, envList("TEST_LIST_UNSET"))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Setenv("STOCKROOM_STORAGE_TYPE", "postgres")
	t.Setenv("STOCKROOM_AUDIT_SINK", "kafka")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
	assert.Contains(t, err.Error(), `invalid audit sink "kafka"`)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.Server.RateLimit.Window)
	assert.Equal(t, storage.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, AuditSinkMemory, cfg.Audit.Sink)
	assert.Equal(t, 4, cfg.Audit.Shards)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
	assert.False(t, cfg.Audit.Archive.Enabled)
	assert.Empty(t, cfg.PolicyFile)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "stockroom", cfg.Observability.OTelServiceName)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("STOCKROOM_PORT", "8000")
	t.Setenv("STOCKROOM_STORAGE_TYPE", "sqlite")
	t.Setenv("STOCKROOM_SQLITE_PATH", "file:/tmp/stock.db")
	t.Setenv("STOCKROOM_STORAGE_TIMEOUT", "2s")
	t.Setenv("STOCKROOM_CACHE_ENABLED", "true")
	t.Setenv("STOCKROOM_REDIS_DB", "0")
	t.Setenv("STOCKROOM_AUDIT_SINK", "Database")
	t.Setenv("STOCKROOM_AUDIT_ARCHIVE_ENABLED", "true")
	t.Setenv("STOCKROOM_AUDIT_ARCHIVE_ORGS", "org-1, org-2,")
	t.Setenv("STOCKROOM_S3_BUCKET", "audit-bucket")
	t.Setenv("STOCKROOM_POLICY_FILE", "/etc/stockroom/policy.yaml")
	t.Setenv("STOCKROOM_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
	assert.Equal(t, "file:/tmp/stock.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.Storage.OperationTimeout)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, 0, cfg.Storage.RedisDB)
	assert.Equal(t, AuditSinkDatabase, cfg.Audit.Sink)
	assert.True(t, cfg.Audit.Archive.Enabled)
	assert.Equal(t, []string{"org-1", "org-2"}, cfg.Audit.Archive.Organizations)
	assert.Equal(t, "audit-bucket", cfg.Audit.Archive.S3.Bucket)
	assert.Equal(t, "audit", cfg.Audit.Archive.S3.Prefix)
	assert.Equal(t, "/etc/stockroom/policy.yaml", cfg.PolicyFile)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", HealthPort: "9090"},
		Storage: storage.DefaultConfig(),
		Audit: AuditConfig{
			Sink:      AuditSinkMemory,
			Shards:    1,
			QueueSize: 1,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "filesystem" }, "invalid storage type"},
		{"postgres without url", func(c *Config) { c.Storage.Type = storage.TypePostgres }, "postgres URL is required"},
		{"mongo without uri", func(c *Config) { c.Storage.Type = storage.TypeMongo }, "mongo URI and database are required"},
		{"sqlite without path", func(c *Config) {
			c.Storage.Type = storage.TypeSQLite
			c.Storage.SQLitePath = ""
		}, "sqlite path is required"},
		{"database sink on memory storage", func(c *Config) { c.Audit.Sink = AuditSinkDatabase }, "requires postgres or sqlite"},
		{"database sink on sqlite", func(c *Config) {
			c.Storage.Type = storage.TypeSQLite
			c.Audit.Sink = AuditSinkDatabase
		}, ""},
		{"file sink without path", func(c *Config) { c.Audit.Sink = AuditSinkFile }, "audit file path is required"},
		{"unknown sink", func(c *Config) { c.Audit.Sink = "kafka" }, "invalid audit sink"},
		{"file mirror", func(c *Config) {
			c.Audit.Mirror = AuditSinkFile
			c.Audit.FilePath = "/var/lib/stockroom/audit"
		}, ""},
		{"file mirror without path", func(c *Config) { c.Audit.Mirror = AuditSinkFile }, "audit file path is required"},
		{"mirror equals sink", func(c *Config) { c.Audit.Mirror = AuditSinkMemory }, "must differ"},
		{"zero shards", func(c *Config) { c.Audit.Shards = 0 }, "must be positive"},
		{"rate limit without window", func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Enabled: true, Requests: 10}
		}, "rate limit requests and window"},
		{"archive without bucket", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Window = time.Hour
		}, "S3 bucket is required"},
		{"archive without organizations", func(c *Config) {
			c.Audit.Archive.Enabled = true
			c.Audit.Archive.Window = time.Hour
			c.Audit.Archive.S3.Bucket = "audit"
		}, "at least one organization"},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true }, "endpoint and service name are required"},
		{"otel sample ratio", func(c *Config) {
			c.Observability = ObservabilityConfig{OTelEnabled: true, OTelEndpoint: "collector:4317", OTelServiceName: "stockroom", OTelSampleRatio: 2}
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STOCKROOM_TEST_FROM_FILE=file\nSTOCKROOM_TEST_PRESET=file\n"), 0o600))
	t.Setenv("STOCKROOM_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("STOCKROOM_TEST_FROM_FILE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "file", os.Getenv("STOCKROOM_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("STOCKROOM_TEST_PRESET"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestOTelConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Observability = ObservabilityConfig{OTelEnabled: true, OTelEndpoint: "collector:4317", OTelServiceName: "stockroom"}
	otel := cfg.OTelConfig()
	assert.True(t, otel.Enabled)
	assert.Equal(t, "collector:4317", otel.Endpoint)
}
