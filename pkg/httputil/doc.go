// Package httputil provides HTTP handler utilities for consistent error
// responses, JSON decoding, query parsing and request middleware.
//
// Error replies share one shape:
//
//	{"error": "access denied (CrossTenantAccess): ...", "reason": "CrossTenantAccess"}
//
// Middleware compose with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//	)(router)
package httputil
