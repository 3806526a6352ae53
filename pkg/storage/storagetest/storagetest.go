// Package storagetest provides a behavioural test suite shared by every
// storage.Adapter implementation.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Factory returns a fresh, empty adapter for a single subtest
type Factory func(t *testing.T) storage.Adapter

// Fixture is a seeded pair of tenants
type Fixture struct {
	Org1, Org2 *models.Organization
	WH1, WH2   *models.Warehouse
}

// Seed inserts two organizations with one warehouse each
func Seed(t *testing.T, a storage.Adapter) Fixture {
	t.Helper()
	ctx := context.Background()

	f := Fixture{
		Org1: &models.Organization{ID: models.NewID(), Name: "Acme"},
		Org2: &models.Organization{ID: models.NewID(), Name: "Globex"},
	}
	_, err := a.Insert(ctx, f.Org1.ID, f.Org1)
	require.NoError(t, err)
	_, err = a.Insert(ctx, f.Org2.ID, f.Org2)
	require.NoError(t, err)

	f.WH1 = &models.Warehouse{ID: models.NewID(), Name: "Main", Location: "Berlin", OrganizationID: f.Org1.ID}
	f.WH2 = &models.Warehouse{ID: models.NewID(), Name: "Main", Location: "Lyon", OrganizationID: f.Org2.ID}
	_, err = a.Insert(ctx, f.Org1.ID, f.WH1)
	require.NoError(t, err)
	_, err = a.Insert(ctx, f.Org2.ID, f.WH2)
	require.NoError(t, err)

	return f
}

// NewItem builds an item in warehouse wh
func NewItem(wh *models.Warehouse, sku string, quantity int64) *models.InventoryItem {
	return &models.InventoryItem{
		ID:             models.NewID(),
		Name:           "Item " + sku,
		SKU:            sku,
		Description:    "test item",
		Quantity:       quantity,
		WarehouseID:    wh.ID,
		OrganizationID: wh.OrganizationID,
	}
}

// RunAdapterTests exercises the adapter guarantees against factory
func RunAdapterTests(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("insert then find round-trips every entity", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		user := &models.User{ID: models.NewID(), Name: "Alice", Role: models.RoleManager, OrganizationID: f.Org1.ID}
		_, err := a.Insert(ctx, f.Org1.ID, user)
		require.NoError(t, err)

		item := NewItem(f.WH1, "SKU001", 10)
		id, err := a.Insert(ctx, f.Org1.ID, item)
		require.NoError(t, err)
		assert.Equal(t, item.ID, id)

		for _, want := range []models.Entity{f.Org1, user, f.WH1, item} {
			got, err := a.Find(ctx, want.Resource(), storage.Filter{OrganizationID: f.Org1.ID, ID: want.GetID()})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, want, got[0])
		}
	})

	t.Run("insert assigns an id when missing", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		wh := &models.Warehouse{Name: "Annex", Location: "Hamburg"}
		id, err := a.Insert(ctx, f.Org1.ID, wh)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: id})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, f.Org1.ID, got[0].GetOrganizationID())
	})

	t.Run("organization filter isolates tenants", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		item := NewItem(f.WH2, "SKU-ORG2", 5)
		_, err := a.Insert(ctx, f.Org2.ID, item)
		require.NoError(t, err)

		got, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, f.WH1.ID, got[0].GetID())

		err = a.Update(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID, storage.Patch{"quantity": 1})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = a.Delete(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err = a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org2.ID, ID: item.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(5), got[0].(*models.InventoryItem).Quantity)
	})

	t.Run("find matches filterable fields", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		annex := &models.Warehouse{ID: models.NewID(), Name: "Annex", OrganizationID: f.Org1.ID}
		_, err := a.Insert(ctx, f.Org1.ID, annex)
		require.NoError(t, err)

		for i, wh := range []*models.Warehouse{f.WH1, f.WH1, annex} {
			_, err := a.Insert(ctx, f.Org1.ID, NewItem(wh, "SKU-F"+string(rune('A'+i)), 1))
			require.NoError(t, err)
		}

		got, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{
			OrganizationID: f.Org1.ID,
			Fields:         map[string]any{"warehouse_id": f.WH1.ID},
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = a.Find(ctx, models.ResourceInventoryItem, storage.Filter{
			OrganizationID: f.Org1.ID,
			Fields:         map[string]any{"sku": "SKU-FC"},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, annex.ID, got[0].(*models.InventoryItem).WarehouseID)

		_, err = a.Find(ctx, models.ResourceInventoryItem, storage.Filter{
			OrganizationID: f.Org1.ID,
			Fields:         map[string]any{"description": "x"},
		})
		assert.ErrorIs(t, err, storage.ErrInvalidArgument)
	})

	t.Run("duplicate sku violates the sku constraint", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		_, err := a.Insert(ctx, f.Org1.ID, NewItem(f.WH1, "SKU001", 1))
		require.NoError(t, err)

		_, err = a.Insert(ctx, f.Org2.ID, NewItem(f.WH2, "SKU001", 1))
		require.ErrorIs(t, err, storage.ErrConstraintViolation)
		constraint, ok := storage.ConstraintOf(err)
		require.True(t, ok)
		assert.Equal(t, storage.ConstraintSKU, constraint)

		items1, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org1.ID})
		require.NoError(t, err)
		items2, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org2.ID})
		require.NoError(t, err)
		assert.Len(t, append(items1, items2...), 1)
	})

	t.Run("concurrent duplicate sku inserts admit exactly one", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = a.Insert(ctx, f.Org1.ID, NewItem(f.WH1, "SKU-RACE", 1))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			constraint, _ := storage.ConstraintOf(err)
			assert.Equal(t, storage.ConstraintSKU, constraint)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("item must reference a warehouse in its own organization", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		item := NewItem(f.WH2, "SKU-X", 1)
		item.OrganizationID = f.Org1.ID

		_, err := a.Insert(ctx, f.Org1.ID, item)
		require.ErrorIs(t, err, storage.ErrConstraintViolation)
		constraint, _ := storage.ConstraintOf(err)
		assert.Equal(t, storage.ConstraintWarehouseRef, constraint)

		got, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org1.ID})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("negative quantity is rejected without a partial write", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		item := NewItem(f.WH1, "SKU-Q", 10)
		_, err := a.Insert(ctx, f.Org1.ID, item)
		require.NoError(t, err)

		err = a.Update(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID, storage.Patch{"quantity": -1, "name": "renamed"})
		require.ErrorIs(t, err, storage.ErrConstraintViolation)
		constraint, _ := storage.ConstraintOf(err)
		assert.Equal(t, storage.ConstraintQuantity, constraint)

		got, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(10), got[0].(*models.InventoryItem).Quantity)
		assert.Equal(t, item.Name, got[0].(*models.InventoryItem).Name)
	})

	t.Run("update applies writable fields", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		err := a.Update(ctx, models.ResourceWarehouse, f.Org1.ID, f.WH1.ID, storage.Patch{"location": "Munich"})
		require.NoError(t, err)

		got, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Munich", got[0].(*models.Warehouse).Location)
		assert.Equal(t, f.WH1.Name, got[0].(*models.Warehouse).Name)

		err = a.Update(ctx, models.ResourceWarehouse, f.Org1.ID, f.WH1.ID, storage.Patch{"organization_id": f.Org2.ID})
		assert.ErrorIs(t, err, storage.ErrInvalidArgument)

		err = a.Update(ctx, models.ResourceWarehouse, f.Org1.ID, models.NewID(), storage.Patch{"name": "x"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("deleting a warehouse cascades to its items", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		kept := NewItem(f.WH2, "SKU-KEEP", 1)
		_, err := a.Insert(ctx, f.Org2.ID, kept)
		require.NoError(t, err)
		for _, sku := range []string{"SKU-C1", "SKU-C2"} {
			_, err := a.Insert(ctx, f.Org1.ID, NewItem(f.WH1, sku, 1))
			require.NoError(t, err)
		}

		require.NoError(t, a.Delete(ctx, models.ResourceWarehouse, f.Org1.ID, f.WH1.ID))

		items, err := a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org1.ID})
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = a.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: f.Org2.ID})
		require.NoError(t, err)
		assert.Len(t, items, 1)

		wh := &models.Warehouse{ID: models.NewID(), Name: "Rebuilt", OrganizationID: f.Org1.ID}
		_, err = a.Insert(ctx, f.Org1.ID, wh)
		require.NoError(t, err)
		_, err = a.Insert(ctx, f.Org1.ID, NewItem(wh, "SKU-C1", 1))
		assert.NoError(t, err, "sku is released by the cascade")
	})

	t.Run("organization delete is restricted while dependents exist", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		err := a.Delete(ctx, models.ResourceOrganization, f.Org1.ID, f.Org1.ID)
		require.ErrorIs(t, err, storage.ErrConstraintViolation)
		constraint, _ := storage.ConstraintOf(err)
		assert.Equal(t, storage.ConstraintOrganizationRef, constraint)

		require.NoError(t, a.Delete(ctx, models.ResourceWarehouse, f.Org1.ID, f.WH1.ID))
		require.NoError(t, a.Delete(ctx, models.ResourceOrganization, f.Org1.ID, f.Org1.ID))

		got, err := a.Find(ctx, models.ResourceOrganization, storage.Filter{OrganizationID: f.Org1.ID, ID: f.Org1.ID})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete of a missing entity is not found", func(t *testing.T) {
		a := factory(t)
		f := Seed(t, a)

		err := a.Delete(ctx, models.ResourceUser, f.Org1.ID, models.NewID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ping succeeds on an open adapter", func(t *testing.T) {
		a := factory(t)
		assert.NoError(t, a.Ping(ctx))
	})
}
