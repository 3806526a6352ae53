// Package storage defines the adapter boundary between stockroom's
// tenant-scoped repository and the engine that persists entities.
//
// # Overview
//
// The repository never builds SQL or document queries itself. It talks to an
// Adapter, which exposes four primitive operations, each carrying an
// organization filter that the adapter applies natively:
//
//	type Adapter interface {
//		Find(ctx, resource, Filter) ([]models.Entity, error)
//		Insert(ctx, organizationID, entity) (string, error)
//		Update(ctx, resource, organizationID, id, Patch) error
//		Delete(ctx, resource, organizationID, id) error
//		Ping(ctx) error
//		Close() error
//	}
//
// Implementations live in sub-packages:
//
//   - memory: in-process maps, used in tests and single-node deployments
//   - sqlstore: relational engines (PostgreSQL, SQLite) over database/sql
//   - mongostore: MongoDB collections
//   - cache: a read-through decorator over any other Adapter
//
// # Adapter Guarantees
//
// Every implementation must:
//
//   - Reject a second inventory item with an existing SKU with a
//     ConstraintViolation naming ConstraintSKU, even under concurrent inserts
//   - Reject an item whose warehouse is missing from its organization with
//     ConstraintWarehouseRef
//   - Delete a warehouse's items together with the warehouse
//   - Return NotFound when an id does not exist inside the given organization
//   - Map engine deadlines to Timeout and lost connectivity to Unavailable
//
// # Errors
//
// Adapter failures are *Error values. Callers match them with errors.Is
// against ErrNotFound, ErrConstraintViolation, ErrTimeout and ErrUnavailable,
// or use errors.As to read the violated constraint:
//
//	var serr *storage.Error
//	if errors.As(err, &serr) && serr.Constraint == storage.ConstraintSKU {
//		// duplicate sku
//	}
//
// Timeout and Unavailable are retryable. Retry wraps an operation with
// exponential backoff and gives up immediately on any other error.
package storage
