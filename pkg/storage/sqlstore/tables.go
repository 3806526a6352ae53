package sqlstore

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/stockroom/pkg/models"
)

type scanner interface {
	Scan(dest ...any) error
}

// table describes how one resource maps onto a relational table
type table struct {
	name      string
	orgColumn string
	columns   []string
	values    func(models.Entity) []any
	scan      func(scanner) (models.Entity, error)
}

var tables = map[models.ResourceType]table{
	models.ResourceOrganization: {
		name:      "organizations",
		orgColumn: "id",
		columns:   []string{"id", "name"},
		values: func(e models.Entity) []any {
			o := e.(*models.Organization)
			return []any{o.ID, o.Name}
		},
		scan: func(row scanner) (models.Entity, error) {
			var o models.Organization
			err := row.Scan(&o.ID, &o.Name)
			return &o, err
		},
	},
	models.ResourceUser: {
		name:      "users",
		orgColumn: "organization_id",
		columns:   []string{"id", "name", "role", "organization_id"},
		values: func(e models.Entity) []any {
			u := e.(*models.User)
			return []any{u.ID, u.Name, string(u.Role), u.OrganizationID}
		},
		scan: func(row scanner) (models.Entity, error) {
			var u models.User
			var role string
			err := row.Scan(&u.ID, &u.Name, &role, &u.OrganizationID)
			u.Role = models.Role(role)
			return &u, err
		},
	},
	models.ResourceWarehouse: {
		name:      "warehouses",
		orgColumn: "organization_id",
		columns:   []string{"id", "name", "location", "organization_id"},
		values: func(e models.Entity) []any {
			w := e.(*models.Warehouse)
			return []any{w.ID, w.Name, w.Location, w.OrganizationID}
		},
		scan: func(row scanner) (models.Entity, error) {
			var w models.Warehouse
			err := row.Scan(&w.ID, &w.Name, &w.Location, &w.OrganizationID)
			return &w, err
		},
	},
	models.ResourceInventoryItem: {
		name:      "inventory_items",
		orgColumn: "organization_id",
		columns:   []string{"id", "name", "sku", "description", "quantity", "warehouse_id", "organization_id"},
		values: func(e models.Entity) []any {
			i := e.(*models.InventoryItem)
			return []any{i.ID, i.Name, i.SKU, i.Description, i.Quantity, i.WarehouseID, i.OrganizationID}
		},
		scan: func(row scanner) (models.Entity, error) {
			var i models.InventoryItem
			err := row.Scan(&i.ID, &i.Name, &i.SKU, &i.Description, &i.Quantity, &i.WarehouseID, &i.OrganizationID)
			return &i, err
		},
	},
}

func tableFor(resource models.ResourceType) (table, error) {
	t, ok := tables[resource]
	if !ok {
		return table{}, fmt.Errorf("sqlstore: no table for resource %q", resource)
	}
	return t, nil
}

func (t table) selectQuery(where []string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id",
		strings.Join(t.columns, ", "), t.name, strings.Join(where, " AND "))
}

func (t table) insertQuery() string {
	placeholders := make([]string, len(t.columns))
	for i := range t.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(t.columns, ", "), strings.Join(placeholders, ", "))
}
