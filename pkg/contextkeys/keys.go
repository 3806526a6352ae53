// Package contextkeys provides centralized context key definitions
//
// All context keys shared between packages are defined here.
//
//	ctx = context.WithValue(ctx, contextkeys.ActorKey, user)
//	user, _ := ctx.Value(contextkeys.ActorKey).(*models.User)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains the resolved caller
	// Set by: api actor middleware
	// Required by: every /v1 handler
	// Type: *models.User
	ActorKey Key = "actor"

	// OrganizationKey contains the organization id from the request path
	// Set by: api actor middleware
	// Used by: handlers, request logging
	// Type: string
	OrganizationKey Key = "organization_id"
)
