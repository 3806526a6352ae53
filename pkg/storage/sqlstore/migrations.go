package sqlstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one schema step. Versions are applied in ascending order.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT CONSTRAINT organizations_pkey PRIMARY KEY,
					name TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id TEXT CONSTRAINT users_pkey PRIMARY KEY,
					name TEXT NOT NULL,
					role TEXT NOT NULL CHECK (role IN ('manager', 'staff')),
					organization_id TEXT NOT NULL,
					CONSTRAINT users_organization_fk FOREIGN KEY (organization_id)
						REFERENCES organizations (id) ON DELETE RESTRICT
				);

				CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users (organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create warehouses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS warehouses (
					id TEXT CONSTRAINT warehouses_pkey PRIMARY KEY,
					name TEXT NOT NULL,
					location TEXT NOT NULL DEFAULT '',
					organization_id TEXT NOT NULL,
					CONSTRAINT warehouses_organization_fk FOREIGN KEY (organization_id)
						REFERENCES organizations (id) ON DELETE RESTRICT,
					CONSTRAINT warehouses_id_organization_key UNIQUE (id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_warehouses_organization_id ON warehouses (organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create inventory_items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS inventory_items (
					id TEXT CONSTRAINT inventory_items_pkey PRIMARY KEY,
					name TEXT NOT NULL,
					sku TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					quantity BIGINT NOT NULL,
					warehouse_id TEXT NOT NULL,
					organization_id TEXT NOT NULL,
					CONSTRAINT inventory_items_sku_key UNIQUE (sku),
					CONSTRAINT inventory_items_quantity_check CHECK (quantity >= 0),
					CONSTRAINT inventory_items_warehouse_fk FOREIGN KEY (warehouse_id, organization_id)
						REFERENCES warehouses (id, organization_id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_inventory_items_organization_id ON inventory_items (organization_id);
				CREATE INDEX IF NOT EXISTS idx_inventory_items_warehouse_id ON inventory_items (warehouse_id);
			`,
		},
	}
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					role TEXT NOT NULL CHECK (role IN ('manager', 'staff')),
					organization_id TEXT NOT NULL
						REFERENCES organizations (id)
				);

				CREATE INDEX IF NOT EXISTS idx_users_organization_id ON users (organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create warehouses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS warehouses (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					location TEXT NOT NULL DEFAULT '',
					organization_id TEXT NOT NULL
						REFERENCES organizations (id),
					UNIQUE (id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_warehouses_organization_id ON warehouses (organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create inventory_items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS inventory_items (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					sku TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					quantity INTEGER NOT NULL CONSTRAINT inventory_items_quantity_check CHECK (quantity >= 0),
					warehouse_id TEXT NOT NULL,
					organization_id TEXT NOT NULL,
					FOREIGN KEY (warehouse_id, organization_id)
						REFERENCES warehouses (id, organization_id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_inventory_items_organization_id ON inventory_items (organization_id);
				CREATE INDEX IF NOT EXISTS idx_inventory_items_warehouse_id ON inventory_items (warehouse_id);
			`,
		},
	}
}

const migrationsTable = "stockroom_migrations"

// Migrate applies pending migrations in version order. Each migration runs
// in its own transaction together with its bookkeeping row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		version INT PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range s.dialect.Migrations() {
		if applied[m.Version] {
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Applying migration")
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		pending++
	}
	if pending == 0 {
		s.logger.Debug("Schema up to date")
	}
	return nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsTable, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("read %s: %w", migrationsTable, err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *Store) apply(ctx context.Context, m Migration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	record := s.dialect.Rebind("INSERT INTO " + migrationsTable + " (version, description) VALUES ($1, $2)")
	if _, err = tx.ExecContext(ctx, record, m.Version, m.Description); err != nil {
		return fmt.Errorf("migration %d: record: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Version, err)
	}
	return nil
}
