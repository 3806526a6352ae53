package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
	"github.com/platinummonkey/stockroom/pkg/storage/memory"
	"github.com/platinummonkey/stockroom/pkg/storage/sqlstore"
	"github.com/platinummonkey/stockroom/pkg/storage/storagetest"
)

func openSQLite(t *testing.T) storage.Adapter {
	t.Helper()

	cfg := storage.DefaultConfig()
	cfg.Type = storage.TypeSQLite
	cfg.SQLitePath = fmt.Sprintf("file:%s?mode=memory&cache=shared", models.NewID())

	s, err := sqlstore.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var backends = []struct {
	name    string
	factory storagetest.Factory
}{
	{"memory", func(t *testing.T) storage.Adapter { return memory.New() }},
	{"sqlite", openSQLite},
}

// forEachBackend runs fn once per adapter implementation
func forEachBackend(t *testing.T, fn func(t *testing.T, e *env)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newEnv(t, b.factory, rbac.NewBuiltInPolicyStore()))
		})
	}
}

// adminPolicies extends the built-in manager role with user and organization
// administration
func adminPolicies(t *testing.T) *rbac.PolicyStore {
	t.Helper()
	policies := rbac.BuiltInPolicies()
	for i := range policies {
		if policies[i].Role != models.RoleManager {
			continue
		}
		policies[i].Permissions = append(policies[i].Permissions,
			rbac.Permission{Resource: models.ResourceUser, Action: rbac.ActionCreate},
			rbac.Permission{Resource: models.ResourceUser, Action: rbac.ActionUpdate},
			rbac.Permission{Resource: models.ResourceUser, Action: rbac.ActionDelete},
			rbac.Permission{Resource: models.ResourceOrganization, Action: rbac.ActionUpdate},
			rbac.Permission{Resource: models.ResourceOrganization, Action: rbac.ActionDelete},
		)
	}
	store, err := rbac.NewPolicyStore(policies, models.RoleManager, models.RoleStaff)
	require.NoError(t, err)
	return store
}

type env struct {
	adapter *storagetest.Recorder
	audit   *audit.MemoryStore
	guard   *rbac.Guard
	repo    *Repository
	service *Service
	fixture storagetest.Fixture

	manager1 *models.User
	staff1   *models.User
	manager2 *models.User
}

func newEnv(t *testing.T, factory storagetest.Factory, policies *rbac.PolicyStore) *env {
	t.Helper()
	ctx := context.Background()

	base := factory(t)
	fixture := storagetest.Seed(t, base)

	e := &env{
		adapter:  storagetest.NewRecorder(base),
		audit:    audit.NewMemoryStore(),
		fixture:  fixture,
		manager1: &models.User{ID: models.NewID(), Name: "Alice", Role: models.RoleManager, OrganizationID: fixture.Org1.ID},
		staff1:   &models.User{ID: models.NewID(), Name: "Bob", Role: models.RoleStaff, OrganizationID: fixture.Org1.ID},
		manager2: &models.User{ID: models.NewID(), Name: "Carol", Role: models.RoleManager, OrganizationID: fixture.Org2.ID},
	}
	for _, u := range []*models.User{e.manager1, e.staff1, e.manager2} {
		_, err := base.Insert(ctx, u.OrganizationID, u)
		require.NoError(t, err)
	}

	e.guard = rbac.NewGuard(policies, e.audit)
	e.repo = NewRepository(e.adapter)
	e.service = NewService(e.guard, e.repo, e.audit)
	return e
}

// grant authorizes actor and fails the test unless allowed
func (e *env) grant(t *testing.T, actor *models.User, action rbac.Action, resource models.ResourceType, id string) *rbac.Grant {
	t.Helper()
	decision := e.guard.Authorize(context.Background(), rbac.AccessRequest{
		Actor:          actor,
		Action:         action,
		Resource:       resource,
		OrganizationID: actor.OrganizationID,
		ResourceID:     id,
	})
	require.True(t, decision.Allowed, "expected %s to be allowed %s %s", actor.Role, action, resource)
	return decision.Grant
}

// createItem stores an item in wh on behalf of actor
func (e *env) createItem(t *testing.T, actor *models.User, wh *models.Warehouse, sku string, quantity int64) *models.InventoryItem {
	t.Helper()
	res, err := e.service.AuthorizeAndExecute(context.Background(), Request{
		Actor:          actor,
		Action:         rbac.ActionCreate,
		Resource:       models.ResourceInventoryItem,
		OrganizationID: actor.OrganizationID,
		Payload:        Payload{Entity: storagetest.NewItem(wh, sku, quantity)},
	})
	require.NoError(t, err)
	return res.Entity.(*models.InventoryItem)
}

// countItems returns the items stored across both seeded organizations
func (e *env) countItems(t *testing.T) int {
	t.Helper()
	n := 0
	for _, org := range []*models.Organization{e.fixture.Org1, e.fixture.Org2} {
		items, err := e.adapter.Adapter.Find(context.Background(), models.ResourceInventoryItem, storage.Filter{OrganizationID: org.ID})
		require.NoError(t, err)
		n += len(items)
	}
	return n
}
