// Package inventory is the tenant-scoped data access layer.
//
// Service.AuthorizeAndExecute is the only caller path: it asks the rbac
// Guard for a decision, and only an allowed decision reaches the Repository,
// carrying the Grant the Guard minted. The Repository refuses to run without
// a Grant that covers the action, resource and organization.
//
// Write invariants are reported as *InvariantViolation:
//
//	WarehouseTenantMismatch  item references a warehouse outside its organization
//	InvalidQuantity          quantity below zero
//	DuplicateSku             sku already used by another item
//	OrganizationMismatch     payload organization differs from the grant
//	OrganizationNotEmpty     organization delete while dependents remain
//	MissingField             name, sku or warehouse id empty
//
// A rejected write changes nothing. Provisioner is the administrative
// channel for bootstrapping data; its writes are audited as "system".
package inventory
