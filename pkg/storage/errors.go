package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTimeout             = errors.New("storage timeout")
	ErrUnavailable         = errors.New("storage unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// ErrorKind classifies adapter failures
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindTimeout             ErrorKind = "timeout"
	KindUnavailable         ErrorKind = "unavailable"
)

// Constraint names reported with KindConstraintViolation
const (
	ConstraintSKU             = "sku"
	ConstraintWarehouseRef    = "warehouse_ref"
	ConstraintOrganizationRef = "organization_ref"
	ConstraintQuantity        = "quantity"
	ConstraintPrimaryKey      = "primary_key"
)

// Error is returned by adapters for every engine failure
type Error struct {
	Kind       ErrorKind
	Resource   models.ResourceType
	ID         string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Resource, e.Kind)
	if e.ID != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Kind)
	}
	if e.Constraint != "" {
		msg += " (" + e.Constraint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConstraintViolation:
		return e.Kind == KindConstraintViolation
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// NotFound reports a missing entity
func NotFound(resource models.ResourceType, id string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, ID: id}
}

// Constraint reports a uniqueness, reference or check violation
func Constraint(resource models.ResourceType, constraint string, err error) *Error {
	return &Error{Kind: KindConstraintViolation, Resource: resource, Constraint: constraint, Err: err}
}

// Timeout reports an operation that exceeded its deadline
func Timeout(resource models.ResourceType, err error) *Error {
	return &Error{Kind: KindTimeout, Resource: resource, Err: err}
}

// Unavailable reports an engine that could not be reached
func Unavailable(resource models.ResourceType, err error) *Error {
	return &Error{Kind: KindUnavailable, Resource: resource, Err: err}
}

// IsRetryable reports whether err is a Timeout or Unavailable failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// ConstraintOf returns the violated constraint name carried by err
func ConstraintOf(err error) (string, bool) {
	var serr *Error
	if errors.As(err, &serr) && serr.Kind == KindConstraintViolation {
		return serr.Constraint, true
	}
	return "", false
}

// FromContext maps an expired operation context to Timeout. It returns nil
// when ctx has not failed.
func FromContext(ctx context.Context, resource models.ResourceType) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout(resource, err)
	default:
		return err
	}
}
