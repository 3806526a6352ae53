package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Repository runs tenant-scoped operations against a storage adapter. Every
// operation requires a Grant from the Guard that covers it.
type Repository struct {
	adapter storage.Adapter
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// RepositoryOption configures a Repository
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the repository logger
func WithRepositoryLogger(logger logrus.FieldLogger) RepositoryOption {
	return func(r *Repository) { r.logger = logger }
}

// WithRepositoryMetrics enables storage operation metrics
func WithRepositoryMetrics(metrics *observability.Metrics) RepositoryOption {
	return func(r *Repository) { r.metrics = metrics }
}

// NewRepository creates a repository over adapter
func NewRepository(adapter storage.Adapter, opts ...RepositoryOption) *Repository {
	r := &Repository{
		adapter: adapter,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ItemFilter narrows ListItems
type ItemFilter struct {
	WarehouseID string
	SKU         string
}

func (f ItemFilter) fields() map[string]any {
	fields := map[string]any{}
	if f.WarehouseID != "" {
		fields["warehouse_id"] = f.WarehouseID
	}
	if f.SKU != "" {
		fields["sku"] = f.SKU
	}
	return fields
}

// WarehouseFilter narrows ListWarehouses
type WarehouseFilter struct {
	Name string
}

func (f WarehouseFilter) fields() map[string]any {
	fields := map[string]any{}
	if f.Name != "" {
		fields["name"] = f.Name
	}
	return fields
}

// UserFilter narrows ListUsers
type UserFilter struct {
	Role models.Role
}

func (f UserFilter) fields() map[string]any {
	fields := map[string]any{}
	if f.Role != "" {
		fields["role"] = string(f.Role)
	}
	return fields
}

// scope checks that grant covers the operation and returns the organization
// it is bound to
func scope(grant *rbac.Grant, action rbac.Action, resource models.ResourceType, id string) (string, error) {
	if grant == nil {
		return "", rbac.ErrInvalidGrant
	}
	organizationID := grant.OrganizationID()
	if err := grant.Check(action, resource, organizationID, id); err != nil {
		return "", err
	}
	return organizationID, nil
}

// observe wraps one adapter call with a span and storage metrics
func (r *Repository) observe(ctx context.Context, op string, resource models.ResourceType, organizationID string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.resource", string(resource)),
			attribute.String("organization.id", organizationID),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.metrics.ObserveStorage(op, string(resource), start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Repository) find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	var entities []models.Entity
	err := r.observe(ctx, "find", resource, filter.OrganizationID, func(ctx context.Context) error {
		var err error
		entities, err = r.adapter.Find(ctx, resource, filter)
		return err
	})
	return entities, err
}

func (r *Repository) get(ctx context.Context, resource models.ResourceType, organizationID, id string) (models.Entity, error) {
	entities, err := r.find(ctx, resource, storage.Filter{OrganizationID: organizationID, ID: id})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, storage.NotFound(resource, id)
	}
	return entities[0], nil
}

func (r *Repository) insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	var id string
	err := r.observe(ctx, "insert", entity.Resource(), organizationID, func(ctx context.Context) error {
		var err error
		id, err = r.adapter.Insert(ctx, organizationID, entity)
		return err
	})
	if err != nil {
		return "", mapWriteError(entity.Resource(), err)
	}
	entity.SetID(id)
	r.logger.WithFields(logrus.Fields{
		"resource":        entity.Resource(),
		"id":              id,
		"organization_id": organizationID,
	}).Debug("Created entity")
	return id, nil
}

// update applies a normalized patch and returns the stored entity
func (r *Repository) update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) (models.Entity, error) {
	normalized, err := validatePatch(resource, patch)
	if err != nil {
		return nil, err
	}
	err = r.observe(ctx, "update", resource, organizationID, func(ctx context.Context) error {
		return r.adapter.Update(ctx, resource, organizationID, id, normalized)
	})
	if err != nil {
		return nil, mapWriteError(resource, err)
	}
	return r.get(ctx, resource, organizationID, id)
}

func (r *Repository) delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	err := r.observe(ctx, "delete", resource, organizationID, func(ctx context.Context) error {
		return r.adapter.Delete(ctx, resource, organizationID, id)
	})
	if err != nil {
		return mapWriteError(resource, err)
	}
	r.logger.WithFields(logrus.Fields{
		"resource":        resource,
		"id":              id,
		"organization_id": organizationID,
	}).Info("Deleted entity")
	return nil
}

func castAll[T models.Entity](entities []models.Entity) []T {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// CreateItem stores a new inventory item. The item's warehouse must belong
// to the grant's organization and its sku must be unused.
func (r *Repository) CreateItem(ctx context.Context, grant *rbac.Grant, item *models.InventoryItem) (*models.InventoryItem, error) {
	organizationID, err := scope(grant, rbac.ActionCreate, models.ResourceInventoryItem, "")
	if err != nil {
		return nil, err
	}
	return r.createItem(ctx, organizationID, item)
}

func (r *Repository) createItem(ctx context.Context, organizationID string, item *models.InventoryItem) (*models.InventoryItem, error) {
	if item == nil {
		return nil, violation(ReasonMissingField, models.ResourceInventoryItem, "item", nil)
	}
	item = item.Clone().(*models.InventoryItem)
	if err := validateItem(item, organizationID); err != nil {
		return nil, err
	}
	if err := r.checkWarehouse(ctx, organizationID, item.WarehouseID); err != nil {
		return nil, err
	}
	if _, err := r.insert(ctx, organizationID, item); err != nil {
		return nil, err
	}
	return item, nil
}

// checkWarehouse rejects a warehouse id that is not found in organizationID
func (r *Repository) checkWarehouse(ctx context.Context, organizationID, warehouseID string) error {
	_, err := r.get(ctx, models.ResourceWarehouse, organizationID, warehouseID)
	if errors.Is(err, storage.ErrNotFound) {
		return violation(ReasonWarehouseTenantMismatch, models.ResourceInventoryItem, "warehouse_id", err)
	}
	return err
}

// GetItem returns one item of the grant's organization
func (r *Repository) GetItem(ctx context.Context, grant *rbac.Grant, id string) (*models.InventoryItem, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceInventoryItem, id)
	if err != nil {
		return nil, err
	}
	e, err := r.get(ctx, models.ResourceInventoryItem, organizationID, id)
	if err != nil {
		return nil, err
	}
	return e.(*models.InventoryItem), nil
}

// ListItems returns the items of the grant's organization matching filter
func (r *Repository) ListItems(ctx context.Context, grant *rbac.Grant, filter ItemFilter) ([]*models.InventoryItem, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceInventoryItem, "")
	if err != nil {
		return nil, err
	}
	entities, err := r.find(ctx, models.ResourceInventoryItem, storage.Filter{OrganizationID: organizationID, Fields: filter.fields()})
	if err != nil {
		return nil, err
	}
	return castAll[*models.InventoryItem](entities), nil
}

// UpdateItem changes name, description or quantity. A negative quantity is
// rejected before anything is written.
func (r *Repository) UpdateItem(ctx context.Context, grant *rbac.Grant, id string, patch storage.Patch) (*models.InventoryItem, error) {
	organizationID, err := scope(grant, rbac.ActionUpdate, models.ResourceInventoryItem, id)
	if err != nil {
		return nil, err
	}
	e, err := r.update(ctx, models.ResourceInventoryItem, organizationID, id, patch)
	if err != nil {
		return nil, err
	}
	return e.(*models.InventoryItem), nil
}

// DeleteItem removes one item
func (r *Repository) DeleteItem(ctx context.Context, grant *rbac.Grant, id string) error {
	organizationID, err := scope(grant, rbac.ActionDelete, models.ResourceInventoryItem, id)
	if err != nil {
		return err
	}
	return r.delete(ctx, models.ResourceInventoryItem, organizationID, id)
}

// CreateWarehouse stores a new warehouse
func (r *Repository) CreateWarehouse(ctx context.Context, grant *rbac.Grant, wh *models.Warehouse) (*models.Warehouse, error) {
	organizationID, err := scope(grant, rbac.ActionCreate, models.ResourceWarehouse, "")
	if err != nil {
		return nil, err
	}
	return r.createWarehouse(ctx, organizationID, wh)
}

func (r *Repository) createWarehouse(ctx context.Context, organizationID string, wh *models.Warehouse) (*models.Warehouse, error) {
	if wh == nil {
		return nil, violation(ReasonMissingField, models.ResourceWarehouse, "warehouse", nil)
	}
	wh = wh.Clone().(*models.Warehouse)
	if err := validateWarehouse(wh, organizationID); err != nil {
		return nil, err
	}
	if _, err := r.insert(ctx, organizationID, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// GetWarehouse returns one warehouse of the grant's organization
func (r *Repository) GetWarehouse(ctx context.Context, grant *rbac.Grant, id string) (*models.Warehouse, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceWarehouse, id)
	if err != nil {
		return nil, err
	}
	e, err := r.get(ctx, models.ResourceWarehouse, organizationID, id)
	if err != nil {
		return nil, err
	}
	return e.(*models.Warehouse), nil
}

// ListWarehouses returns the warehouses of the grant's organization
func (r *Repository) ListWarehouses(ctx context.Context, grant *rbac.Grant, filter WarehouseFilter) ([]*models.Warehouse, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceWarehouse, "")
	if err != nil {
		return nil, err
	}
	entities, err := r.find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: organizationID, Fields: filter.fields()})
	if err != nil {
		return nil, err
	}
	return castAll[*models.Warehouse](entities), nil
}

// UpdateWarehouse changes name or location
func (r *Repository) UpdateWarehouse(ctx context.Context, grant *rbac.Grant, id string, patch storage.Patch) (*models.Warehouse, error) {
	organizationID, err := scope(grant, rbac.ActionUpdate, models.ResourceWarehouse, id)
	if err != nil {
		return nil, err
	}
	e, err := r.update(ctx, models.ResourceWarehouse, organizationID, id, patch)
	if err != nil {
		return nil, err
	}
	return e.(*models.Warehouse), nil
}

// DeleteWarehouse removes a warehouse together with its items
func (r *Repository) DeleteWarehouse(ctx context.Context, grant *rbac.Grant, id string) error {
	organizationID, err := scope(grant, rbac.ActionDelete, models.ResourceWarehouse, id)
	if err != nil {
		return err
	}
	return r.delete(ctx, models.ResourceWarehouse, organizationID, id)
}

// CreateUser stores a new user. The role is fixed from here on.
func (r *Repository) CreateUser(ctx context.Context, grant *rbac.Grant, user *models.User) (*models.User, error) {
	organizationID, err := scope(grant, rbac.ActionCreate, models.ResourceUser, "")
	if err != nil {
		return nil, err
	}
	return r.createUser(ctx, organizationID, user)
}

func (r *Repository) createUser(ctx context.Context, organizationID string, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, violation(ReasonMissingField, models.ResourceUser, "user", nil)
	}
	user = user.Clone().(*models.User)
	if err := validateUser(user, organizationID); err != nil {
		return nil, err
	}
	if _, err := r.insert(ctx, organizationID, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns one user of the grant's organization
func (r *Repository) GetUser(ctx context.Context, grant *rbac.Grant, id string) (*models.User, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceUser, id)
	if err != nil {
		return nil, err
	}
	e, err := r.get(ctx, models.ResourceUser, organizationID, id)
	if err != nil {
		return nil, err
	}
	return e.(*models.User), nil
}

// ListUsers returns the users of the grant's organization
func (r *Repository) ListUsers(ctx context.Context, grant *rbac.Grant, filter UserFilter) ([]*models.User, error) {
	organizationID, err := scope(grant, rbac.ActionRead, models.ResourceUser, "")
	if err != nil {
		return nil, err
	}
	entities, err := r.find(ctx, models.ResourceUser, storage.Filter{OrganizationID: organizationID, Fields: filter.fields()})
	if err != nil {
		return nil, err
	}
	return castAll[*models.User](entities), nil
}

// UpdateUser changes a user's name
func (r *Repository) UpdateUser(ctx context.Context, grant *rbac.Grant, id string, patch storage.Patch) (*models.User, error) {
	organizationID, err := scope(grant, rbac.ActionUpdate, models.ResourceUser, id)
	if err != nil {
		return nil, err
	}
	e, err := r.update(ctx, models.ResourceUser, organizationID, id, patch)
	if err != nil {
		return nil, err
	}
	return e.(*models.User), nil
}

// DeleteUser removes one user
func (r *Repository) DeleteUser(ctx context.Context, grant *rbac.Grant, id string) error {
	organizationID, err := scope(grant, rbac.ActionDelete, models.ResourceUser, id)
	if err != nil {
		return err
	}
	return r.delete(ctx, models.ResourceUser, organizationID, id)
}

// GetOrganization returns the grant's organization
func (r *Repository) GetOrganization(ctx context.Context, grant *rbac.Grant) (*models.Organization, error) {
	organizationID, err := scopeOrganization(grant, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	e, err := r.get(ctx, models.ResourceOrganization, organizationID, organizationID)
	if err != nil {
		return nil, err
	}
	return e.(*models.Organization), nil
}

// UpdateOrganization renames the grant's organization
func (r *Repository) UpdateOrganization(ctx context.Context, grant *rbac.Grant, patch storage.Patch) (*models.Organization, error) {
	organizationID, err := scopeOrganization(grant, rbac.ActionUpdate)
	if err != nil {
		return nil, err
	}
	e, err := r.update(ctx, models.ResourceOrganization, organizationID, organizationID, patch)
	if err != nil {
		return nil, err
	}
	return e.(*models.Organization), nil
}

// DeleteOrganization removes the grant's organization. It fails with
// OrganizationNotEmpty while users, warehouses or items remain.
func (r *Repository) DeleteOrganization(ctx context.Context, grant *rbac.Grant) error {
	organizationID, err := scopeOrganization(grant, rbac.ActionDelete)
	if err != nil {
		return err
	}
	return r.delete(ctx, models.ResourceOrganization, organizationID, organizationID)
}

func scopeOrganization(grant *rbac.Grant, action rbac.Action) (string, error) {
	if grant == nil {
		return "", rbac.ErrInvalidGrant
	}
	return scope(grant, action, models.ResourceOrganization, grant.OrganizationID())
}
