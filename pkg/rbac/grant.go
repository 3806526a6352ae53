package rbac

import (
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// Grant is proof that the Guard allowed one action. Only the Guard can mint
// a valid Grant; the zero value covers nothing.
type Grant struct {
	valid          bool
	actorUserID    string
	actorRole      models.Role
	action         Action
	resource       models.ResourceType
	organizationID string
	resourceID     string
}

func (g *Grant) ActorUserID() string { return g.actorUserID }
func (g *Grant) ActorRole() models.Role { return g.actorRole }
func (g *Grant) Action() Action { return g.action }
func (g *Grant) Resource() models.ResourceType { return g.resource }
func (g *Grant) OrganizationID() string { return g.organizationID }
func (g *Grant) ResourceID() string { return g.resourceID }

// Check verifies that the grant covers an action on a resource in an
// organization. A grant issued for a specific resource id covers only that id.
func (g *Grant) Check(action Action, resource models.ResourceType, organizationID, resourceID string) error {
	if g == nil || !g.valid {
		return ErrInvalidGrant
	}
	if g.action != action || g.resource != resource {
		return fmt.Errorf("%w: issued for %s:%s, used for %s:%s", ErrInvalidGrant, g.resource, g.action, resource, action)
	}
	if g.organizationID != organizationID {
		return fmt.Errorf("%w: issued for organization %s", ErrInvalidGrant, g.organizationID)
	}
	if g.resourceID != "" && g.resourceID != resourceID {
		return fmt.Errorf("%w: issued for %s %s", ErrInvalidGrant, g.resource, g.resourceID)
	}
	return nil
}
