package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Dialect isolates the engine-specific parts of the relational adapter
type Dialect interface {
	// Name is the database/sql driver name
	Name() string
	// Rebind converts $n placeholders to the dialect's form
	Rebind(query string) string
	// MapError translates an engine error into a *storage.Error when possible
	MapError(resource models.ResourceType, err error) error
	// Migrations returns the dialect's schema migrations in version order
	Migrations() []Migration
}

// DialectFor returns the dialect for a storage backend type
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case storage.TypePostgres:
		return Postgres{}, nil
	case storage.TypeSQLite:
		return SQLite{}, nil
	}
	return nil, errors.New("sqlstore: unsupported backend " + backend)
}

// constraintNames maps named schema constraints to storage constraint names
var constraintNames = map[string]string{
	"organizations_pkey":             storage.ConstraintPrimaryKey,
	"users_pkey":                     storage.ConstraintPrimaryKey,
	"warehouses_pkey":                storage.ConstraintPrimaryKey,
	"inventory_items_pkey":           storage.ConstraintPrimaryKey,
	"inventory_items_sku_key":        storage.ConstraintSKU,
	"inventory_items_quantity_check": storage.ConstraintQuantity,
	"inventory_items_warehouse_fk":   storage.ConstraintWarehouseRef,
	"users_organization_fk":          storage.ConstraintOrganizationRef,
	"warehouses_organization_fk":     storage.ConstraintOrganizationRef,
}

// Postgres is the PostgreSQL dialect
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Rebind(query string) string { return query }

func (Postgres) Migrations() []Migration { return postgresMigrations() }

// MapError maps SQLSTATE codes to storage errors
func (Postgres) MapError(resource models.ResourceType, err error) error {
	if err == nil {
		return nil
	}
	if mapped := mapCommonError(resource, err); mapped != nil {
		return mapped
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation:
		constraint, ok := constraintNames[pqErr.Constraint]
		if !ok {
			constraint = pqErr.Constraint
		}
		return storage.Constraint(resource, constraint, err)

	case pgerrcode.QueryCanceled, pgerrcode.LockNotAvailable:
		return storage.Timeout(resource, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections:
		return storage.Unavailable(resource, err)
	}
	return err
}

// SQLite is the SQLite dialect
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

var placeholderRE = regexp.MustCompile(`\$\d+`)

func (SQLite) Rebind(query string) string {
	return placeholderRE.ReplaceAllString(query, "?")
}

func (SQLite) Migrations() []Migration { return sqliteMigrations() }

// MapError maps SQLite extended result codes to storage errors. SQLite does
// not report foreign key names, so references are attributed by resource.
// The schema leaves organization references at NO ACTION because RESTRICT
// surfaces as a trigger failure rather than a foreign key failure.
func (SQLite) MapError(resource models.ResourceType, err error) error {
	if err == nil {
		return nil
	}
	if mapped := mapCommonError(resource, err); mapped != nil {
		return mapped
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			if strings.Contains(sqliteErr.Error(), "inventory_items.sku") {
				return storage.Constraint(resource, storage.ConstraintSKU, err)
			}
			return storage.Constraint(resource, storage.ConstraintPrimaryKey, err)
		case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintTrigger:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger && !strings.Contains(sqliteErr.Error(), "FOREIGN KEY") {
				break
			}
			if resource == models.ResourceInventoryItem {
				return storage.Constraint(resource, storage.ConstraintWarehouseRef, err)
			}
			return storage.Constraint(resource, storage.ConstraintOrganizationRef, err)
		case sqlite3.ErrConstraintCheck:
			if resource == models.ResourceInventoryItem {
				return storage.Constraint(resource, storage.ConstraintQuantity, err)
			}
		}
		return storage.Constraint(resource, "", err)
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return storage.Timeout(resource, err)
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
		return storage.Unavailable(resource, err)
	}
	return err
}

// mapCommonError handles failures raised by database/sql and the network
// rather than the engine
func mapCommonError(resource models.ResourceType, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return storage.Timeout(resource, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return storage.Unavailable(resource, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return storage.Timeout(resource, err)
		}
		return storage.Unavailable(resource, err)
	}
	return nil
}
