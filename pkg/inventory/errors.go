package inventory

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// ViolationReason names a data integrity rule
type ViolationReason string

const (
	ReasonWarehouseTenantMismatch ViolationReason = "WarehouseTenantMismatch"
	ReasonInvalidQuantity         ViolationReason = "InvalidQuantity"
	ReasonDuplicateSku            ViolationReason = "DuplicateSku"
	ReasonOrganizationMismatch    ViolationReason = "OrganizationMismatch"
	ReasonOrganizationNotEmpty    ViolationReason = "OrganizationNotEmpty"
	ReasonMissingField            ViolationReason = "MissingField"
)

var (
	ErrWarehouseTenantMismatch = errors.New("warehouse belongs to another organization")
	ErrInvalidQuantity         = errors.New("quantity must not be negative")
	ErrDuplicateSku            = errors.New("sku already exists")
	ErrOrganizationMismatch    = errors.New("payload organization does not match")
	ErrOrganizationNotEmpty    = errors.New("organization still has dependent records")
	ErrMissingField            = errors.New("required field missing")

	// ErrUnsupportedOperation is returned for action and resource pairs the
	// repository does not expose
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrUnknownActor is returned when an actor cannot be resolved
	ErrUnknownActor = errors.New("unknown actor")
)

var reasonSentinels = map[ViolationReason]error{
	ReasonWarehouseTenantMismatch: ErrWarehouseTenantMismatch,
	ReasonInvalidQuantity:         ErrInvalidQuantity,
	ReasonDuplicateSku:            ErrDuplicateSku,
	ReasonOrganizationMismatch:    ErrOrganizationMismatch,
	ReasonOrganizationNotEmpty:    ErrOrganizationNotEmpty,
	ReasonMissingField:            ErrMissingField,
}

// InvariantViolation reports a rejected write. Nothing was changed.
type InvariantViolation struct {
	Reason   ViolationReason
	Resource models.ResourceType
	Field    string
	Err      error
}

func violation(reason ViolationReason, resource models.ResourceType, field string, err error) *InvariantViolation {
	return &InvariantViolation{Reason: reason, Resource: resource, Field: field, Err: err}
}

func (e *InvariantViolation) Error() string {
	msg := fmt.Sprintf("%s invariant violated (%s)", e.Resource, e.Reason)
	if e.Field != "" {
		msg += ": field " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvariantViolation) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels
func (e *InvariantViolation) Is(target error) bool {
	return target == reasonSentinels[e.Reason]
}

// mapWriteError turns adapter constraint violations into invariant
// violations. Other errors are returned unchanged.
func mapWriteError(resource models.ResourceType, err error) error {
	constraint, ok := storage.ConstraintOf(err)
	if !ok {
		return err
	}
	switch constraint {
	case storage.ConstraintSKU:
		return violation(ReasonDuplicateSku, resource, "sku", err)
	case storage.ConstraintWarehouseRef:
		return violation(ReasonWarehouseTenantMismatch, resource, "warehouse_id", err)
	case storage.ConstraintQuantity:
		return violation(ReasonInvalidQuantity, resource, "quantity", err)
	case storage.ConstraintOrganizationRef:
		if resource == models.ResourceOrganization {
			return violation(ReasonOrganizationNotEmpty, resource, "", err)
		}
		return violation(ReasonOrganizationMismatch, resource, "organization_id", err)
	}
	return err
}
