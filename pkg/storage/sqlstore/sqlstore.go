package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Store implements storage.Adapter on a relational database
type Store struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
	logger  logrus.FieldLogger
	closed  atomic.Bool
}

var errClosed = errors.New("sqlstore: store closed")

var _ storage.Adapter = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTimeout bounds every store operation
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// New wraps an open database handle. It does not run migrations.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the database described by cfg, verifies connectivity and
// applies pending migrations
func Open(ctx context.Context, cfg storage.Config, opts ...Option) (*Store, error) {
	dialect, err := DialectFor(cfg.Type)
	if err != nil {
		return nil, err
	}

	dsn := cfg.PostgresURL
	if cfg.Type == storage.TypeSQLite {
		dsn = sqliteDSN(cfg.SQLitePath)
	}

	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Type, err)
	}

	if cfg.Type == storage.TypeSQLite {
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.PostgresMaxConns)
		db.SetMaxIdleConns(cfg.PostgresMinConns)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	opts = append([]Option{WithTimeout(cfg.OperationTimeout)}, opts...)
	s := New(db, dialect, opts...)

	pingCtx, cancel := storage.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Type, err)
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// sqliteDSN enables foreign key enforcement, which SQLite leaves off by default
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if strings.Contains(path, "_foreign_keys") || strings.Contains(path, "_fk=") {
		return path
	}
	return path + sep + "_foreign_keys=on"
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Find selects matching rows, always constrained by organization
func (s *Store) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	filter, err := storage.NormalizeFilter(resource, filter)
	if err != nil {
		return nil, err
	}
	t, err := tableFor(resource)
	if err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, storage.Unavailable(resource, errClosed)
	}

	where := []string{t.orgColumn + " = $1"}
	args := []any{filter.OrganizationID}
	if filter.ID != "" {
		args = append(args, filter.ID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}
	for _, field := range filter.SortedFieldNames() {
		args = append(args, filter.Fields[field])
		where = append(where, fmt.Sprintf("%s = $%d", field, len(args)))
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(t.selectQuery(where)), args...)
	if err != nil {
		return nil, s.dialect.MapError(resource, err)
	}
	defer rows.Close()

	var result []models.Entity
	for rows.Next() {
		e, err := t.scan(rows)
		if err != nil {
			return nil, s.dialect.MapError(resource, fmt.Errorf("failed to scan %s: %w", t.name, err))
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(resource, err)
	}
	return result, nil
}

// Insert writes one row; schema constraints surface as ConstraintViolation
func (s *Store) Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	resource := entity.Resource()
	t, err := tableFor(resource)
	if err != nil {
		return "", err
	}

	if s.closed.Load() {
		return "", storage.Unavailable(resource, errClosed)
	}

	e := entity.Clone()
	if err := storage.PrepareInsert(organizationID, e); err != nil {
		return "", err
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(t.insertQuery()), t.values(e)...); err != nil {
		return "", s.dialect.MapError(resource, err)
	}
	return e.GetID(), nil
}

// Update changes the patched columns of one row in a single statement
func (s *Store) Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) error {
	patch, err := patch.Normalize(resource)
	if err != nil {
		return err
	}
	t, err := tableFor(resource)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return storage.Unavailable(resource, errClosed)
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+2)
	for _, field := range patch.Keys() {
		args = append(args, patch[field])
		sets = append(sets, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	args = append(args, id, organizationID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND %s = $%d",
		t.name, strings.Join(sets, ", "), len(args)-1, t.orgColumn, len(args))

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return s.dialect.MapError(resource, err)
	}
	return expectOneRow(result, resource, id, s.dialect)
}

// Delete removes one row. Items of a deleted warehouse go with it through
// ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	t, err := tableFor(resource)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}
	if s.closed.Load() {
		return storage.Unavailable(resource, errClosed)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND %s = $2", t.name, t.orgColumn)

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(query), id, organizationID)
	if err != nil {
		return s.dialect.MapError(resource, err)
	}
	return expectOneRow(result, resource, id, s.dialect)
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.Unavailable("", errClosed)
	}
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		if mapped := s.dialect.MapError("", err); storage.IsRetryable(mapped) {
			return mapped
		}
		return storage.Unavailable("", err)
	}
	return nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func expectOneRow(result sql.Result, resource models.ResourceType, id string, dialect Dialect) error {
	n, err := result.RowsAffected()
	if err != nil {
		return dialect.MapError(resource, err)
	}
	if n == 0 {
		return storage.NotFound(resource, id)
	}
	return nil
}
