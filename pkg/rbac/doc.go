// Package rbac implements role based access control for stockroom.
//
// A PolicyStore maps each role to its permissions. The built-in model has
// two roles:
//
//	manager: create, read, update, delete on warehouses and inventory items;
//	         read on the organization and its users
//	staff:   read and update on inventory items; read on warehouses
//
// Policies can also be loaded from YAML with LoadPolicyFile:
//
//	roles:
//	  manager:
//	    warehouse: [create, read, update, delete]
//	    inventory_item: [create, read, update, delete]
//	  staff:
//	    inventory_item: [read, update]
//
// The Guard decides each AccessRequest. The tenant check runs before the
// role lookup, so a manager of one organization is denied in another with
// CrossTenantAccess. Every decision, allowed or denied, is written to the
// audit recorder.
//
//	decision := guard.Authorize(ctx, rbac.AccessRequest{
//		Actor:          user,
//		Action:         rbac.ActionUpdate,
//		Resource:       models.ResourceInventoryItem,
//		OrganizationID: orgID,
//		ResourceID:     itemID,
//	})
//	if !decision.Allowed {
//		return decision.Err()
//	}
//	err := repo.UpdateItem(ctx, decision.Grant, itemID, patch)
//
// Allowed decisions carry a Grant. Repository operations refuse to run
// without a Grant that covers them.
package rbac
