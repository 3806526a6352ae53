package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// Filter selects entities of one resource type inside one organization
type Filter struct {
	// OrganizationID is mandatory; adapters never search across tenants
	OrganizationID string
	// ID narrows the result to a single entity when set
	ID string
	// Fields holds equality matches on filterable fields (see FilterableFields)
	Fields map[string]any
}

// Adapter is the persistence boundary used by the repository
type Adapter interface {
	// Find returns the entities matching filter. An empty result is not an error.
	Find(ctx context.Context, resource models.ResourceType, filter Filter) ([]models.Entity, error)

	// Insert stores entity under organizationID and returns its id, assigning
	// one when the entity has none.
	Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error)

	// Update applies patch to the entity with id inside organizationID
	Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch Patch) error

	// Delete removes the entity with id inside organizationID. Deleting a
	// warehouse also deletes its inventory items.
	Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error

	// Ping checks connectivity to the backing engine
	Ping(ctx context.Context) error

	// Close releases engine resources
	Close() error
}

// Backend types
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeMongo    = "mongo"
)

// Config for storage backend
type Config struct {
	Type string // "memory", "postgres", "sqlite", "mongo"

	// OperationTimeout bounds every adapter call
	OperationTimeout time.Duration

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int

	// SQLite config
	SQLitePath string

	// MongoDB config
	MongoURI      string
	MongoDatabase string

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	L1CacheSize  int // Entries
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		OperationTimeout: 5 * time.Second,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		SQLitePath:       "file:stockroom.db",
		MongoDatabase:    "stockroom",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     false,
		CacheTTL:         5 * time.Minute,
		L1CacheSize:      10000,
	}
}

// WithTimeout derives the per-operation context for an adapter call
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
