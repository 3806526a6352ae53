// Package models defines the tenant-scoped entities managed by stockroom.
//
// Every entity belongs to exactly one organization. Organizations are the
// root of tenant isolation: an Organization reports its own ID as its
// organization ID, so the same organization filter applies uniformly to all
// four resource types.
//
//	Organization  {id, name}
//	User          {id, name, role, organization_id}
//	Warehouse     {id, name, location, organization_id}
//	InventoryItem {id, name, sku, description, quantity, warehouse_id, organization_id}
//
// IDs are opaque strings. NewID returns a random UUID for entities created
// without one.
package models
