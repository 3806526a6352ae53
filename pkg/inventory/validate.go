package inventory

import (
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

func required(resource models.ResourceType, field, value string) error {
	if value == "" {
		return violation(ReasonMissingField, resource, field, nil)
	}
	return nil
}

// checkOrganization fills an empty payload organization and rejects a
// different one
func checkOrganization(resource models.ResourceType, payload *string, organizationID string) error {
	if *payload == "" {
		*payload = organizationID
		return nil
	}
	if *payload != organizationID {
		return violation(ReasonOrganizationMismatch, resource, "organization_id",
			fmt.Errorf("payload organization %q, scope %q", *payload, organizationID))
	}
	return nil
}

func validateOrganization(org *models.Organization) error {
	if org == nil {
		return violation(ReasonMissingField, models.ResourceOrganization, "organization", nil)
	}
	return required(models.ResourceOrganization, "name", org.Name)
}

func validateUser(user *models.User, organizationID string) error {
	if user == nil {
		return violation(ReasonMissingField, models.ResourceUser, "user", nil)
	}
	if err := required(models.ResourceUser, "name", user.Name); err != nil {
		return err
	}
	if err := required(models.ResourceUser, "role", string(user.Role)); err != nil {
		return err
	}
	if !user.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", storage.ErrInvalidArgument, user.Role)
	}
	return checkOrganization(models.ResourceUser, &user.OrganizationID, organizationID)
}

func validateWarehouse(wh *models.Warehouse, organizationID string) error {
	if wh == nil {
		return violation(ReasonMissingField, models.ResourceWarehouse, "warehouse", nil)
	}
	if err := required(models.ResourceWarehouse, "name", wh.Name); err != nil {
		return err
	}
	return checkOrganization(models.ResourceWarehouse, &wh.OrganizationID, organizationID)
}

func validateItem(item *models.InventoryItem, organizationID string) error {
	if item == nil {
		return violation(ReasonMissingField, models.ResourceInventoryItem, "item", nil)
	}
	for _, f := range []struct{ name, value string }{
		{"name", item.Name},
		{"sku", item.SKU},
		{"warehouse_id", item.WarehouseID},
	} {
		if err := required(models.ResourceInventoryItem, f.name, f.value); err != nil {
			return err
		}
	}
	if item.Quantity < 0 {
		return violation(ReasonInvalidQuantity, models.ResourceInventoryItem, "quantity",
			fmt.Errorf("got %d", item.Quantity))
	}
	return checkOrganization(models.ResourceInventoryItem, &item.OrganizationID, organizationID)
}

// validatePatch normalizes a patch and applies the write invariants before
// any storage call
func validatePatch(resource models.ResourceType, patch storage.Patch) (storage.Patch, error) {
	normalized, err := patch.Normalize(resource)
	if err != nil {
		return nil, err
	}
	if name, ok := normalized["name"]; ok && name == "" {
		return nil, violation(ReasonMissingField, resource, "name", nil)
	}
	if q, ok := normalized["quantity"]; ok && q.(int64) < 0 {
		return nil, violation(ReasonInvalidQuantity, resource, "quantity", fmt.Errorf("got %d", q))
	}
	return normalized, nil
}
