package rbac

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// Reason explains why access was denied
type Reason string

const (
	ReasonCrossTenantAccess  Reason = "CrossTenantAccess"
	ReasonUnknownRole        Reason = "UnknownRole"
	ReasonActionNotPermitted Reason = "ActionNotPermitted"
)

var (
	ErrCrossTenantAccess  = errors.New("cross-tenant access")
	ErrUnknownRole        = errors.New("unknown role")
	ErrActionNotPermitted = errors.New("action not permitted")
	// ErrInvalidGrant is returned when an operation runs without a grant
	// that covers it
	ErrInvalidGrant = errors.New("invalid grant")
)

func sentinelFor(reason Reason) error {
	switch reason {
	case ReasonCrossTenantAccess:
		return ErrCrossTenantAccess
	case ReasonUnknownRole:
		return ErrUnknownRole
	case ReasonActionNotPermitted:
		return ErrActionNotPermitted
	}
	return nil
}

// AccessError is a denied access decision in error form
type AccessError struct {
	Reason         Reason
	ActorUserID    string
	Action         Action
	Resource       models.ResourceType
	OrganizationID string
	ResourceID     string
}

func (e *AccessError) Error() string {
	target := string(e.Resource)
	if e.ResourceID != "" {
		target += " " + e.ResourceID
	}
	return fmt.Sprintf("access denied (%s): %s %s in organization %s", e.Reason, e.Action, target, e.OrganizationID)
}

// Is matches the reason sentinels
func (e *AccessError) Is(target error) bool {
	return target == sentinelFor(e.Reason)
}

// PolicyError reports a broken policy configuration
type PolicyError struct {
	Reason Reason
	Role   models.Role
	Err    error
}

func (e *PolicyError) Error() string {
	msg := fmt.Sprintf("policy error (%s)", e.Reason)
	if e.Role != "" {
		msg += ": role " + string(e.Role)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels
func (e *PolicyError) Is(target error) bool {
	return target == sentinelFor(e.Reason)
}
