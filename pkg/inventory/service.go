package inventory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Payload carries the operation input. Entity is used by create, Patch by
// update and Filter by list.
type Payload struct {
	Entity models.Entity
	Patch  storage.Patch
	Filter map[string]string
}

// Request is one caller action on one resource
type Request struct {
	Actor          *models.User
	Action         rbac.Action
	Resource       models.ResourceType
	OrganizationID string
	ResourceID     string
	Payload        Payload
}

// Result holds a single entity for create, get and update, or a list for a
// read without a resource id. Delete returns an empty Result.
type Result struct {
	Entity   models.Entity
	Entities []models.Entity
}

type handler func(ctx context.Context, grant *rbac.Grant, req Request) (Result, error)

// Service is the caller-facing surface. It authorizes every request with
// the Guard before anything reaches the Repository.
type Service struct {
	guard    *rbac.Guard
	repo     *Repository
	audit    audit.Reader
	handlers map[rbac.Permission]handler
	retry    storage.RetryConfig
	logger   logrus.FieldLogger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger
func WithServiceLogger(logger logrus.FieldLogger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRetryConfig sets the retry policy for read actions
func WithRetryConfig(cfg storage.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// NewService wires a guard, repository and audit reader together
func NewService(guard *rbac.Guard, repo *Repository, auditReader audit.Reader, opts ...ServiceOption) *Service {
	s := &Service{
		guard:  guard,
		repo:   repo,
		audit:  auditReader,
		retry:  storage.DefaultRetryConfig(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = s.routes()
	return s
}

func perm(resource models.ResourceType, action rbac.Action) rbac.Permission {
	return rbac.Permission{Resource: resource, Action: action}
}

func (s *Service) routes() map[rbac.Permission]handler {
	return map[rbac.Permission]handler{
		perm(models.ResourceInventoryItem, rbac.ActionCreate): s.createItem,
		perm(models.ResourceInventoryItem, rbac.ActionRead):   s.readItems,
		perm(models.ResourceInventoryItem, rbac.ActionUpdate): s.updateItem,
		perm(models.ResourceInventoryItem, rbac.ActionDelete): s.deleteItem,

		perm(models.ResourceWarehouse, rbac.ActionCreate): s.createWarehouse,
		perm(models.ResourceWarehouse, rbac.ActionRead):   s.readWarehouses,
		perm(models.ResourceWarehouse, rbac.ActionUpdate): s.updateWarehouse,
		perm(models.ResourceWarehouse, rbac.ActionDelete): s.deleteWarehouse,

		perm(models.ResourceUser, rbac.ActionCreate): s.createUser,
		perm(models.ResourceUser, rbac.ActionRead):   s.readUsers,
		perm(models.ResourceUser, rbac.ActionUpdate): s.updateUser,
		perm(models.ResourceUser, rbac.ActionDelete): s.deleteUser,

		perm(models.ResourceOrganization, rbac.ActionRead):   s.readOrganization,
		perm(models.ResourceOrganization, rbac.ActionUpdate): s.updateOrganization,
		perm(models.ResourceOrganization, rbac.ActionDelete): s.deleteOrganization,
	}
}

// AuthorizeAndExecute asks the Guard for a decision and, only when allowed,
// runs the operation with the issued grant. A denial returns an
// *rbac.AccessError and performs no storage call.
func (s *Service) AuthorizeAndExecute(ctx context.Context, req Request) (Result, error) {
	decision := s.guard.Authorize(ctx, rbac.AccessRequest{
		Actor:          req.Actor,
		Action:         req.Action,
		Resource:       req.Resource,
		OrganizationID: req.OrganizationID,
		ResourceID:     req.ResourceID,
	})
	if !decision.Allowed {
		return Result{}, decision.Err()
	}

	h, ok := s.handlers[perm(req.Resource, req.Action)]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s %s", ErrUnsupportedOperation, req.Action, req.Resource)
	}

	var (
		result Result
		err    error
	)
	if req.Action == rbac.ActionRead {
		result, err = storage.Retry(ctx, s.retry, func(ctx context.Context) (Result, error) {
			return h(ctx, decision.Grant, req)
		})
	} else {
		result, err = h(ctx, decision.Grant, req)
	}
	if err != nil {
		observability.UpdateLoggerWithTraceContext(ctx, s.logger).WithError(err).WithFields(logrus.Fields{
			"actor_user_id":   decision.Grant.ActorUserID(),
			"action":          req.Action,
			"resource":        req.Resource,
			"resource_id":     req.ResourceID,
			"organization_id": req.OrganizationID,
		}).Debug("Operation failed")
		return Result{}, err
	}
	return result, nil
}

// QueryAudit returns the audit records of the actor's organization. It is
// authorized as a read of the organization.
func (s *Service) QueryAudit(ctx context.Context, actor *models.User, q audit.Query) ([]audit.Record, error) {
	decision := s.guard.Authorize(ctx, rbac.AccessRequest{
		Actor:          actor,
		Action:         rbac.ActionRead,
		Resource:       models.ResourceOrganization,
		OrganizationID: q.OrganizationID,
		ResourceID:     q.OrganizationID,
	})
	if !decision.Allowed {
		return nil, decision.Err()
	}
	return s.audit.Query(ctx, q)
}

func entityAs[T models.Entity](resource models.ResourceType, e models.Entity) (T, error) {
	v, ok := e.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s payload required", storage.ErrInvalidArgument, resource)
	}
	return v, nil
}

func list[T models.Entity](entities []T, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	out := make([]models.Entity, len(entities))
	for i, e := range entities {
		out[i] = e
	}
	return Result{Entities: out}, nil
}

func (s *Service) createItem(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	item, err := entityAs[*models.InventoryItem](req.Resource, req.Payload.Entity)
	if err != nil {
		return Result{}, err
	}
	created, err := s.repo.CreateItem(ctx, grant, item)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: created}, nil
}

func (s *Service) readItems(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	if req.ResourceID != "" {
		item, err := s.repo.GetItem(ctx, grant, req.ResourceID)
		if err != nil {
			return Result{}, err
		}
		return Result{Entity: item}, nil
	}
	return list[*models.InventoryItem](s.repo.ListItems(ctx, grant, ItemFilter{
		WarehouseID: req.Payload.Filter["warehouse_id"],
		SKU:         req.Payload.Filter["sku"],
	}))
}

func (s *Service) updateItem(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	item, err := s.repo.UpdateItem(ctx, grant, req.ResourceID, req.Payload.Patch)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: item}, nil
}

func (s *Service) deleteItem(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	return Result{}, s.repo.DeleteItem(ctx, grant, req.ResourceID)
}

func (s *Service) createWarehouse(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	wh, err := entityAs[*models.Warehouse](req.Resource, req.Payload.Entity)
	if err != nil {
		return Result{}, err
	}
	created, err := s.repo.CreateWarehouse(ctx, grant, wh)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: created}, nil
}

func (s *Service) readWarehouses(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	if req.ResourceID != "" {
		wh, err := s.repo.GetWarehouse(ctx, grant, req.ResourceID)
		if err != nil {
			return Result{}, err
		}
		return Result{Entity: wh}, nil
	}
	return list[*models.Warehouse](s.repo.ListWarehouses(ctx, grant, WarehouseFilter{Name: req.Payload.Filter["name"]}))
}

func (s *Service) updateWarehouse(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	wh, err := s.repo.UpdateWarehouse(ctx, grant, req.ResourceID, req.Payload.Patch)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: wh}, nil
}

func (s *Service) deleteWarehouse(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	return Result{}, s.repo.DeleteWarehouse(ctx, grant, req.ResourceID)
}

func (s *Service) createUser(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	user, err := entityAs[*models.User](req.Resource, req.Payload.Entity)
	if err != nil {
		return Result{}, err
	}
	created, err := s.repo.CreateUser(ctx, grant, user)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: created}, nil
}

func (s *Service) readUsers(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	if req.ResourceID != "" {
		user, err := s.repo.GetUser(ctx, grant, req.ResourceID)
		if err != nil {
			return Result{}, err
		}
		return Result{Entity: user}, nil
	}
	return list[*models.User](s.repo.ListUsers(ctx, grant, UserFilter{Role: models.Role(req.Payload.Filter["role"])}))
}

func (s *Service) updateUser(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	user, err := s.repo.UpdateUser(ctx, grant, req.ResourceID, req.Payload.Patch)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: user}, nil
}

func (s *Service) deleteUser(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	return Result{}, s.repo.DeleteUser(ctx, grant, req.ResourceID)
}

func (s *Service) readOrganization(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	org, err := s.repo.GetOrganization(ctx, grant)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: org}, nil
}

func (s *Service) updateOrganization(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	org, err := s.repo.UpdateOrganization(ctx, grant, req.Payload.Patch)
	if err != nil {
		return Result{}, err
	}
	return Result{Entity: org}, nil
}

func (s *Service) deleteOrganization(ctx context.Context, grant *rbac.Grant, req Request) (Result, error) {
	return Result{}, s.repo.DeleteOrganization(ctx, grant)
}
