package storage

import (
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// PrepareInsert fills in the id and organization of e before an insert and
// checks that e belongs to organizationID. Adapters call it on a clone.
func PrepareInsert(organizationID string, e models.Entity) error {
	if org, ok := e.(*models.Organization); ok {
		if org.ID == "" {
			org.ID = organizationID
		}
		if org.ID == "" {
			org.ID = models.NewID()
		}
		if organizationID != "" && org.ID != organizationID {
			return fmt.Errorf("%w: organization id %q does not match %q", ErrInvalidArgument, org.ID, organizationID)
		}
		return nil
	}

	if organizationID == "" {
		return fmt.Errorf("%w: organization is required", ErrInvalidArgument)
	}
	if e.GetID() == "" {
		e.SetID(models.NewID())
	}

	switch v := e.(type) {
	case *models.User:
		if v.OrganizationID == "" {
			v.OrganizationID = organizationID
		}
	case *models.Warehouse:
		if v.OrganizationID == "" {
			v.OrganizationID = organizationID
		}
	case *models.InventoryItem:
		if v.OrganizationID == "" {
			v.OrganizationID = organizationID
		}
	default:
		return fmt.Errorf("%w: unsupported entity %T", ErrInvalidArgument, e)
	}

	if e.GetOrganizationID() != organizationID {
		return fmt.Errorf("%w: entity organization %q does not match %q",
			ErrInvalidArgument, e.GetOrganizationID(), organizationID)
	}
	return nil
}
