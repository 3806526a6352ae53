package memory

import (
	"errors"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

var errClosed = errors.New("memory adapter closed")

func matches(e models.Entity, filter storage.Filter) bool {
	if e.GetOrganizationID() != filter.OrganizationID {
		return false
	}
	if filter.ID != "" && e.GetID() != filter.ID {
		return false
	}
	for field, want := range filter.Fields {
		if fieldValue(e, field) != want {
			return false
		}
	}
	return true
}

func fieldValue(e models.Entity, field string) any {
	switch v := e.(type) {
	case *models.User:
		if field == "role" {
			return string(v.Role)
		}
	case *models.Warehouse:
		if field == "name" {
			return v.Name
		}
	case *models.InventoryItem:
		switch field {
		case "sku":
			return v.SKU
		case "warehouse_id":
			return v.WarehouseID
		}
	}
	return nil
}

func applyPatch(e models.Entity, patch storage.Patch) {
	for field, value := range patch {
		switch v := e.(type) {
		case *models.Organization:
			if field == "name" {
				v.Name = value.(string)
			}
		case *models.User:
			if field == "name" {
				v.Name = value.(string)
			}
		case *models.Warehouse:
			switch field {
			case "name":
				v.Name = value.(string)
			case "location":
				v.Location = value.(string)
			}
		case *models.InventoryItem:
			switch field {
			case "name":
				v.Name = value.(string)
			case "description":
				v.Description = value.(string)
			case "quantity":
				v.Quantity = value.(int64)
			}
		}
	}
}
