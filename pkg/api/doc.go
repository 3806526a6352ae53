// Package api exposes the inventory service over HTTP.
//
// Callers identify themselves with the X-User-ID and X-Organization-ID
// headers. The pair is resolved to a user in that organization; an unknown
// pair is rejected with 401 before any access decision is made. Every other
// request is decided by the access guard and audited.
//
// Routes:
//
//	GET|PATCH|DELETE  /v1/orgs/{org_id}
//	GET               /v1/orgs/{org_id}/audit
//	GET|POST          /v1/orgs/{org_id}/{users|warehouses|items}
//	GET|PATCH|DELETE  /v1/orgs/{org_id}/{users|warehouses|items}/{id}
//	GET               /healthz, /readyz, /metrics
//
// Errors are JSON objects with "error" and "reason". Access denials are 403,
// DuplicateSku and OrganizationNotEmpty are 409, other invariant violations
// are 422.
package api
