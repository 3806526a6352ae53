package inventory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
	"github.com/platinummonkey/stockroom/pkg/storage/memory"
)

const sampleSeed = `
organizations:
  - id: org1
    name: Acme
    users:
      - {id: user1, name: Alice, role: manager}
      - {id: user2, name: Bob, role: staff}
    warehouses:
      - id: wh1
        name: Main
        location: Berlin
        items:
          - {id: item1, name: Widget, sku: SKU001, quantity: 10}
          - {id: item2, name: Gadget, sku: SKU002, quantity: 5}
  - id: org2
    name: Globex
    users:
      - {id: user3, name: Carol, role: manager}
    warehouses:
      - id: wh2
        name: Depot
        location: Lyon
`

func newProvisioner(t *testing.T) (*Provisioner, storage.Adapter, *audit.MemoryStore) {
	t.Helper()
	adapter := memory.New()
	store := audit.NewMemoryStore()
	return NewProvisioner(NewRepository(adapter), store, nil), adapter, store
}

func TestProvisioner_Seed(t *testing.T) {
	p, adapter, store := newProvisioner(t)
	ctx := context.Background()

	data, err := ParseSeed(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	summary, err := p.Seed(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Organizations: 2, Users: 3, Warehouses: 2, Items: 2}, summary)

	items, err := adapter.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: "org1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, e := range items {
		item := e.(*models.InventoryItem)
		assert.Equal(t, "wh1", item.WarehouseID)
		assert.Equal(t, "org1", item.OrganizationID)
	}

	users, err := adapter.Find(ctx, models.ResourceUser, storage.Filter{OrganizationID: "org2", ID: "user3"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.RoleManager, users[0].(*models.User).Role)

	records, err := store.Query(ctx, audit.Query{OrganizationID: "org1"})
	require.NoError(t, err)
	assert.Len(t, records, 1+2+1+2)
	for _, r := range records {
		assert.Equal(t, audit.SystemActorID, r.ActorUserID)
		assert.Equal(t, audit.DecisionAllowed, r.Decision)
	}
}

func TestProvisioner_SeedStopsAtFirstViolation(t *testing.T) {
	p, adapter, _ := newProvisioner(t)
	ctx := context.Background()

	data, err := ParseSeed(strings.NewReader(`
organizations:
  - id: org1
    name: Acme
    warehouses:
      - id: wh1
        name: Main
        items:
          - {name: Widget, sku: SKU001, quantity: 10}
          - {name: Clone, sku: SKU001, quantity: 1}
          - {name: Never, sku: SKU003, quantity: 1}
`))
	require.NoError(t, err)

	summary, err := p.Seed(ctx, data)
	assert.ErrorIs(t, err, ErrDuplicateSku)
	assert.Equal(t, 1, summary.Items)

	items, err := adapter.Find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: "org1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestProvisioner_Validation(t *testing.T) {
	p, _, store := newProvisioner(t)
	ctx := context.Background()

	_, err := p.CreateOrganization(ctx, &models.Organization{})
	assert.ErrorIs(t, err, ErrMissingField)

	org, err := p.CreateOrganization(ctx, &models.Organization{Name: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, org.ID)

	_, err = p.CreateItem(ctx, org.ID, &models.InventoryItem{Name: "x", SKU: "S", Quantity: -1, WarehouseID: "wh"})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = p.CreateUser(ctx, org.ID, &models.User{Name: "Mallory", Role: models.RoleStaff, OrganizationID: "elsewhere"})
	assert.ErrorIs(t, err, ErrOrganizationMismatch)

	assert.Equal(t, 1, store.Len())
}

func TestParseSeed_UnknownField(t *testing.T) {
	_, err := ParseSeed(strings.NewReader("organisations: []\n"))
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))

	data, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, data.Organizations, 2)
	assert.Equal(t, "Acme", data.Organizations[0].Name)
	assert.Len(t, data.Organizations[0].Warehouses[0].Items, 2)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
