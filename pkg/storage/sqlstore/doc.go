// Package sqlstore implements storage.Adapter on relational databases through
// database/sql.
//
// Two dialects are supported: PostgreSQL (github.com/lib/pq) and SQLite
// (github.com/mattn/go-sqlite3). The schema carries every adapter guarantee
// as a native constraint:
//
//	inventory_items_sku_key        UNIQUE (sku)
//	inventory_items_quantity_check CHECK (quantity >= 0)
//	inventory_items_warehouse_fk   FOREIGN KEY (warehouse_id, organization_id)
//	                               REFERENCES warehouses (id, organization_id)
//	                               ON DELETE CASCADE
//	users_organization_fk,
//	warehouses_organization_fk     REFERENCES organizations (id) ON DELETE RESTRICT
//	                               (NO ACTION on SQLite)
//
// The composite warehouse key makes a cross-tenant warehouse reference
// impossible at the storage layer, and the cascade removes a warehouse's
// items in the same statement that removes the warehouse.
//
// Engine errors are translated into *storage.Error by the dialect: PostgreSQL
// SQLSTATE codes via github.com/jackc/pgerrcode, SQLite extended result codes
// via the go-sqlite3 constants.
//
// # Usage
//
//	store, err := sqlstore.Open(ctx, storage.Config{
//		Type:        storage.TypePostgres,
//		PostgresURL: "postgres://localhost/stockroom?sslmode=disable",
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// Open runs pending schema migrations before returning.
package sqlstore
