package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres{}), mock
}

func TestPostgres_FindAppliesOrganizationFilter(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "location", "organization_id"}).
		AddRow("w1", "Main", "Berlin", "org1")
	mock.ExpectQuery(`SELECT id, name, location, organization_id FROM warehouses WHERE organization_id = \$1 AND id = \$2 ORDER BY id`).
		WithArgs("org1", "w1").
		WillReturnRows(rows)

	got, err := s.Find(context.Background(), models.ResourceWarehouse, storage.Filter{OrganizationID: "org1", ID: "w1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, &models.Warehouse{ID: "w1", Name: "Main", Location: "Berlin", OrganizationID: "org1"}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByField(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM inventory_items WHERE organization_id = \$1 AND warehouse_id = \$2 ORDER BY id`).
		WithArgs("org1", "w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sku", "description", "quantity", "warehouse_id", "organization_id"}).
			AddRow("i1", "Bolt", "SKU001", "", int64(10), "w1", "org1"))

	got, err := s.Find(context.Background(), models.ResourceInventoryItem, storage.Filter{
		OrganizationID: "org1",
		Fields:         map[string]any{"warehouse_id": "w1"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].(*models.InventoryItem).Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OrganizationsFilterOnID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name FROM organizations WHERE id = \$1 ORDER BY id`).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("org1", "Acme"))

	got, err := s.Find(context.Background(), models.ResourceOrganization, storage.Filter{OrganizationID: "org1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateBuildsSingleStatement(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE inventory_items SET name = \$1, quantity = \$2 WHERE id = \$3 AND organization_id = \$4`).
		WithArgs("Bolt", int64(3), "i1", "org1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Update(context.Background(), models.ResourceInventoryItem, "org1", "i1", storage.Patch{"quantity": 3, "name": "Bolt"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_NoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM warehouses WHERE id = \$1 AND organization_id = \$2`).
		WithArgs("w9", "org1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), models.ResourceWarehouse, "org1", "w9")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertMapsConstraintViolations(t *testing.T) {
	tests := []struct {
		name       string
		pqErr      *pq.Error
		constraint string
	}{
		{"duplicate sku", &pq.Error{Code: pgerrcode.UniqueViolation, Constraint: "inventory_items_sku_key"}, storage.ConstraintSKU},
		{"foreign warehouse", &pq.Error{Code: pgerrcode.ForeignKeyViolation, Constraint: "inventory_items_warehouse_fk"}, storage.ConstraintWarehouseRef},
		{"negative quantity", &pq.Error{Code: pgerrcode.CheckViolation, Constraint: "inventory_items_quantity_check"}, storage.ConstraintQuantity},
		{"duplicate id", &pq.Error{Code: pgerrcode.UniqueViolation, Constraint: "inventory_items_pkey"}, storage.ConstraintPrimaryKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec("INSERT INTO inventory_items").WillReturnError(tt.pqErr)

			item := &models.InventoryItem{ID: "i1", Name: "Bolt", SKU: "SKU001", Quantity: 1, WarehouseID: "w1", OrganizationID: "org1"}
			_, err := s.Insert(context.Background(), "org1", item)
			require.ErrorIs(t, err, storage.ErrConstraintViolation)
			constraint, ok := storage.ConstraintOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.constraint, constraint)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_MapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"deadline", context.DeadlineExceeded, storage.ErrTimeout},
		{"query canceled", &pq.Error{Code: pgerrcode.QueryCanceled}, storage.ErrTimeout},
		{"bad connection", driver.ErrBadConn, storage.ErrUnavailable},
		{"admin shutdown", &pq.Error{Code: pgerrcode.AdminShutdown}, storage.ErrUnavailable},
		{"too many connections", &pq.Error{Code: pgerrcode.TooManyConnections}, storage.ErrUnavailable},
		{"restricted delete", &pq.Error{Code: pgerrcode.ForeignKeyViolation, Constraint: "users_organization_fk"}, storage.ErrConstraintViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Postgres{}.MapError(models.ResourceOrganization, tt.err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}

	plain := errors.New("syntax error")
	assert.Equal(t, plain, Postgres{}.MapError(models.ResourceUser, plain))
	assert.NoError(t, Postgres{}.MapError(models.ResourceUser, nil))
}

func TestPostgres_QueryTimeout(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").WillReturnError(context.DeadlineExceeded)

	_, err := s.Find(context.Background(), models.ResourceUser, storage.Filter{OrganizationID: "org1"})
	assert.ErrorIs(t, err, storage.ErrTimeout)
	assert.True(t, storage.IsRetryable(err))
}

func TestMigrate_RollsBackFailedStep(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS stockroom_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM stockroom_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
