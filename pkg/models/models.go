package models

import (
	"github.com/google/uuid"
)

// ResourceType identifies one of the entity kinds guarded by access control
type ResourceType string

const (
	ResourceOrganization  ResourceType = "organization"
	ResourceUser          ResourceType = "user"
	ResourceWarehouse     ResourceType = "warehouse"
	ResourceInventoryItem ResourceType = "inventory_item"
)

// ResourceTypes returns all resource types in a stable order
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceOrganization,
		ResourceUser,
		ResourceWarehouse,
		ResourceInventoryItem,
	}
}

// Valid reports whether r is a known resource type
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceOrganization, ResourceUser, ResourceWarehouse, ResourceInventoryItem:
		return true
	}
	return false
}

func (r ResourceType) String() string {
	return string(r)
}

// Role is a user's role within their organization. It is fixed at creation.
type Role string

const (
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// ValidRoles lists the roles a user may hold
var ValidRoles = map[Role]bool{
	RoleManager: true,
	RoleStaff:   true,
}

// IsValid reports whether r is one of ValidRoles
func (r Role) IsValid() bool {
	return ValidRoles[r]
}

// Entity is implemented by every persisted model
type Entity interface {
	Resource() ResourceType
	GetID() string
	SetID(id string)
	GetOrganizationID() string
	Clone() Entity
}

// NewID returns a fresh opaque identifier
func NewID() string {
	return uuid.NewString()
}

// Organization is the root of tenant isolation
type Organization struct {
	ID   string `json:"id" bson:"_id" yaml:"id"`
	Name string `json:"name" bson:"name" yaml:"name"`
}

func (o *Organization) Resource() ResourceType { return ResourceOrganization }
func (o *Organization) GetID() string { return o.ID }
func (o *Organization) SetID(id string) { o.ID = id }
func (o *Organization) GetOrganizationID() string { return o.ID }

func (o *Organization) Clone() Entity {
	c := *o
	return &c
}

// User is a member of one organization
type User struct {
	ID             string `json:"id" bson:"_id" yaml:"id"`
	Name           string `json:"name" bson:"name" yaml:"name"`
	Role           Role   `json:"role" bson:"role" yaml:"role"`
	OrganizationID string `json:"organization_id" bson:"organization_id" yaml:"organization_id"`
}

func (u *User) Resource() ResourceType { return ResourceUser }
func (u *User) GetID() string { return u.ID }
func (u *User) SetID(id string) { u.ID = id }
func (u *User) GetOrganizationID() string { return u.OrganizationID }

func (u *User) Clone() Entity {
	c := *u
	return &c
}

// Warehouse is a storage location owned by an organization
type Warehouse struct {
	ID             string `json:"id" bson:"_id" yaml:"id"`
	Name           string `json:"name" bson:"name" yaml:"name"`
	Location       string `json:"location" bson:"location" yaml:"location"`
	OrganizationID string `json:"organization_id" bson:"organization_id" yaml:"organization_id"`
}

func (w *Warehouse) Resource() ResourceType { return ResourceWarehouse }
func (w *Warehouse) GetID() string { return w.ID }
func (w *Warehouse) SetID(id string) { w.ID = id }
func (w *Warehouse) GetOrganizationID() string { return w.OrganizationID }

func (w *Warehouse) Clone() Entity {
	c := *w
	return &c
}

// InventoryItem is a stocked product held in a warehouse. SKU is unique
// across all organizations and Quantity is never negative.
type InventoryItem struct {
	ID             string `json:"id" bson:"_id" yaml:"id"`
	Name           string `json:"name" bson:"name" yaml:"name"`
	SKU            string `json:"sku" bson:"sku" yaml:"sku"`
	Description    string `json:"description" bson:"description" yaml:"description"`
	Quantity       int64  `json:"quantity" bson:"quantity" yaml:"quantity"`
	WarehouseID    string `json:"warehouse_id" bson:"warehouse_id" yaml:"warehouse_id"`
	OrganizationID string `json:"organization_id" bson:"organization_id" yaml:"organization_id"`
}

func (i *InventoryItem) Resource() ResourceType { return ResourceInventoryItem }
func (i *InventoryItem) GetID() string { return i.ID }
func (i *InventoryItem) SetID(id string) { i.ID = id }
func (i *InventoryItem) GetOrganizationID() string { return i.OrganizationID }

func (i *InventoryItem) Clone() Entity {
	c := *i
	return &c
}

// NewEntity returns an empty entity of the given resource type, or nil when
// the type is unknown
func NewEntity(resource ResourceType) Entity {
	switch resource {
	case ResourceOrganization:
		return &Organization{}
	case ResourceUser:
		return &User{}
	case ResourceWarehouse:
		return &Warehouse{}
	case ResourceInventoryItem:
		return &InventoryItem{}
	}
	return nil
}
