// Package config reads stockroom settings from STOCKROOM_* environment
// variables. LoadEnvFile can seed the environment from a dotenv file first;
// variables that are already set keep their value.
//
// Malformed values fall back to the default rather than failing, and
// Validate then reports every remaining inconsistency in one error.
//
// Frequently used variables:
//
//	STOCKROOM_PORT=8080 STOCKROOM_HEALTH_PORT=9090
//	STOCKROOM_STORAGE_TYPE=postgres   # memory, postgres, sqlite, mongo
//	STOCKROOM_POSTGRES_URL=postgres://localhost/stockroom
//	STOCKROOM_REDIS_URL=redis://localhost:6379 STOCKROOM_CACHE_ENABLED=true
//	STOCKROOM_AUDIT_SINK=database     # memory, database, file
//	STOCKROOM_AUDIT_ARCHIVE_ENABLED=true STOCKROOM_AUDIT_ARCHIVE_ORGS=org-1,org-2
//	STOCKROOM_S3_BUCKET=stockroom-audit
//	STOCKROOM_RATE_LIMIT_ENABLED=true STOCKROOM_RATE_LIMIT_REQUESTS=600
//	STOCKROOM_POLICY_FILE=/etc/stockroom/policy.yaml
//	STOCKROOM_LOG_LEVEL=debug STOCKROOM_OTEL_ENABLED=true
package config
