package rbac

import (
	"github.com/platinummonkey/stockroom/pkg/models"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions returns every action in a stable order
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource models.ResourceType `json:"resource" yaml:"resource"`
	Action   Action              `json:"action" yaml:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// RolePolicy is the set of permissions held by one role
type RolePolicy struct {
	Role        models.Role  `json:"role" yaml:"role"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

func crud(resource models.ResourceType, actions ...Action) []Permission {
	perms := make([]Permission, 0, len(actions))
	for _, action := range actions {
		perms = append(perms, Permission{Resource: resource, Action: action})
	}
	return perms
}

// BuiltInPolicies returns the default two-role model
func BuiltInPolicies() []RolePolicy {
	var manager []Permission
	manager = append(manager, crud(models.ResourceWarehouse, Actions()...)...)
	manager = append(manager, crud(models.ResourceInventoryItem, Actions()...)...)
	manager = append(manager, crud(models.ResourceOrganization, ActionRead)...)
	manager = append(manager, crud(models.ResourceUser, ActionRead)...)

	var staff []Permission
	staff = append(staff, crud(models.ResourceInventoryItem, ActionRead, ActionUpdate)...)
	staff = append(staff, crud(models.ResourceWarehouse, ActionRead)...)

	return []RolePolicy{
		{Role: models.RoleManager, Permissions: manager},
		{Role: models.RoleStaff, Permissions: staff},
	}
}
