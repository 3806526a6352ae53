// Package memory implements storage.Adapter with in-process maps.
//
// Data is lost on restart. The adapter enforces the same guarantees as the
// database-backed adapters: a unique SKU index, warehouse references scoped
// to the item's organization, non-negative quantities, explicit cascade from
// warehouses to their items, and restricted deletion of non-empty
// organizations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Adapter implements storage.Adapter using in-memory storage
type Adapter struct {
	mu sync.RWMutex

	tables map[models.ResourceType]map[string]models.Entity // resource -> id -> entity
	skus   map[string]string                                // sku -> item id
	closed bool
}

var _ storage.Adapter = (*Adapter)(nil)

// New creates an empty in-memory adapter
func New() *Adapter {
	tables := make(map[models.ResourceType]map[string]models.Entity)
	for _, r := range models.ResourceTypes() {
		tables[r] = make(map[string]models.Entity)
	}
	return &Adapter{
		tables: tables,
		skus:   make(map[string]string),
	}
}

// Find returns clones of the matching entities ordered by id
func (a *Adapter) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	filter, err := storage.NormalizeFilter(resource, filter)
	if err != nil {
		return nil, err
	}
	if err := storage.FromContext(ctx, resource); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, storage.Unavailable(resource, errClosed)
	}

	table := a.tables[resource]
	var result []models.Entity
	if filter.ID != "" {
		if e, ok := table[filter.ID]; ok && matches(e, filter) {
			result = append(result, e.Clone())
		}
		return result, nil
	}

	for _, e := range table {
		if matches(e, filter) {
			result = append(result, e.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GetID() < result[j].GetID() })
	return result, nil
}

// Insert stores a clone of entity
func (a *Adapter) Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	resource := entity.Resource()
	if err := storage.FromContext(ctx, resource); err != nil {
		return "", err
	}

	e := entity.Clone()
	if err := storage.PrepareInsert(organizationID, e); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "", storage.Unavailable(resource, errClosed)
	}

	table := a.tables[resource]
	if _, exists := table[e.GetID()]; exists {
		return "", storage.Constraint(resource, storage.ConstraintPrimaryKey, fmt.Errorf("id %q already exists", e.GetID()))
	}

	if resource != models.ResourceOrganization {
		if _, ok := a.tables[models.ResourceOrganization][e.GetOrganizationID()]; !ok {
			return "", storage.Constraint(resource, storage.ConstraintOrganizationRef,
				fmt.Errorf("organization %q does not exist", e.GetOrganizationID()))
		}
	}

	if item, ok := e.(*models.InventoryItem); ok {
		if item.Quantity < 0 {
			return "", storage.Constraint(resource, storage.ConstraintQuantity, fmt.Errorf("quantity %d is negative", item.Quantity))
		}
		wh, ok := a.tables[models.ResourceWarehouse][item.WarehouseID]
		if !ok || wh.GetOrganizationID() != item.OrganizationID {
			return "", storage.Constraint(resource, storage.ConstraintWarehouseRef,
				fmt.Errorf("warehouse %q not found in organization %q", item.WarehouseID, item.OrganizationID))
		}
		if _, taken := a.skus[item.SKU]; taken {
			return "", storage.Constraint(resource, storage.ConstraintSKU, fmt.Errorf("sku %q already exists", item.SKU))
		}
		a.skus[item.SKU] = item.ID
	}

	table[e.GetID()] = e
	return e.GetID(), nil
}

// Update applies patch to a clone and swaps it in only when it is valid
func (a *Adapter) Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) error {
	patch, err := patch.Normalize(resource)
	if err != nil {
		return err
	}
	if err := storage.FromContext(ctx, resource); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return storage.Unavailable(resource, errClosed)
	}

	current, ok := a.tables[resource][id]
	if !ok || current.GetOrganizationID() != organizationID {
		return storage.NotFound(resource, id)
	}

	next := current.Clone()
	applyPatch(next, patch)
	if item, ok := next.(*models.InventoryItem); ok && item.Quantity < 0 {
		return storage.Constraint(resource, storage.ConstraintQuantity, fmt.Errorf("quantity %d is negative", item.Quantity))
	}

	a.tables[resource][id] = next
	return nil
}

// Delete removes an entity. Warehouses take their items with them and
// organizations must be empty.
func (a *Adapter) Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	if !resource.Valid() {
		return fmt.Errorf("%w: unknown resource %q", storage.ErrInvalidArgument, resource)
	}
	if err := storage.FromContext(ctx, resource); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return storage.Unavailable(resource, errClosed)
	}

	current, ok := a.tables[resource][id]
	if !ok || current.GetOrganizationID() != organizationID {
		return storage.NotFound(resource, id)
	}

	switch resource {
	case models.ResourceOrganization:
		for _, r := range []models.ResourceType{models.ResourceUser, models.ResourceWarehouse, models.ResourceInventoryItem} {
			for _, e := range a.tables[r] {
				if e.GetOrganizationID() == id {
					return storage.Constraint(resource, storage.ConstraintOrganizationRef,
						fmt.Errorf("organization %q still has %s records", id, r))
				}
			}
		}
	case models.ResourceWarehouse:
		for itemID, e := range a.tables[models.ResourceInventoryItem] {
			item := e.(*models.InventoryItem)
			if item.WarehouseID == id && item.OrganizationID == organizationID {
				delete(a.skus, item.SKU)
				delete(a.tables[models.ResourceInventoryItem], itemID)
			}
		}
	case models.ResourceInventoryItem:
		delete(a.skus, current.(*models.InventoryItem).SKU)
	}

	delete(a.tables[resource], id)
	return nil
}

// Ping reports whether the adapter is still open
func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return storage.Unavailable("", errClosed)
	}
	return nil
}

// Close marks the adapter closed; subsequent calls fail with Unavailable
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Len returns the number of stored entities of resource
func (a *Adapter) Len(resource models.ResourceType) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tables[resource])
}
