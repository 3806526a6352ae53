package inventory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Provisioner is the administrative write channel used to bootstrap
// organizations and their data. It applies the same invariants as the
// Repository and audits every write with actor "system".
type Provisioner struct {
	repo     *Repository
	recorder audit.Recorder
	retry    storage.RetryConfig
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewProvisioner creates a provisioner sharing repo's adapter
func NewProvisioner(repo *Repository, recorder audit.Recorder, logger logrus.FieldLogger) *Provisioner {
	if logger == nil {
		logger = repo.logger
	}
	return &Provisioner{
		repo:     repo,
		recorder: recorder,
		retry:    storage.DefaultRetryConfig(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateOrganization stores a new organization
func (p *Provisioner) CreateOrganization(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	if err := validateOrganization(org); err != nil {
		return nil, err
	}
	org = org.Clone().(*models.Organization)
	_, err := storage.Retry(ctx, p.retry, func(ctx context.Context) (string, error) {
		return p.repo.insert(ctx, org.ID, org)
	})
	if err != nil {
		return nil, err
	}
	p.record(ctx, org)
	return org, nil
}

// CreateUser stores a new user in organizationID
func (p *Provisioner) CreateUser(ctx context.Context, organizationID string, user *models.User) (*models.User, error) {
	created, err := storage.Retry(ctx, p.retry, func(ctx context.Context) (*models.User, error) {
		return p.repo.createUser(ctx, organizationID, user)
	})
	if err != nil {
		return nil, err
	}
	p.record(ctx, created)
	return created, nil
}

// CreateWarehouse stores a new warehouse in organizationID
func (p *Provisioner) CreateWarehouse(ctx context.Context, organizationID string, wh *models.Warehouse) (*models.Warehouse, error) {
	created, err := storage.Retry(ctx, p.retry, func(ctx context.Context) (*models.Warehouse, error) {
		return p.repo.createWarehouse(ctx, organizationID, wh)
	})
	if err != nil {
		return nil, err
	}
	p.record(ctx, created)
	return created, nil
}

// CreateItem stores a new inventory item in organizationID
func (p *Provisioner) CreateItem(ctx context.Context, organizationID string, item *models.InventoryItem) (*models.InventoryItem, error) {
	created, err := storage.Retry(ctx, p.retry, func(ctx context.Context) (*models.InventoryItem, error) {
		return p.repo.createItem(ctx, organizationID, item)
	})
	if err != nil {
		return nil, err
	}
	p.record(ctx, created)
	return created, nil
}

func (p *Provisioner) record(ctx context.Context, e models.Entity) {
	record := audit.Record{
		ActorUserID:    audit.SystemActorID,
		Action:         string(rbac.ActionCreate),
		ResourceType:   e.Resource(),
		ResourceID:     e.GetID(),
		OrganizationID: e.GetOrganizationID(),
		Decision:       audit.DecisionAllowed,
		Timestamp:      p.now(),
	}
	if err := p.recorder.Record(ctx, record); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"resource":        record.ResourceType,
			"resource_id":     record.ResourceID,
			"organization_id": record.OrganizationID,
		}).Warn("Failed to record provisioning")
	}
}
