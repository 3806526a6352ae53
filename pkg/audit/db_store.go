package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage/sqlstore"
)

// DBStore writes audit records to the audit_records table of a relational
// database. The table lives next to the inventory schema.
type DBStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// NewDBStore creates a database-backed audit store and ensures its table exists
func NewDBStore(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect == nil {
		return nil, fmt.Errorf("dialect is required")
	}

	store := &DBStore{
		db:      db,
		dialect: dialect,
	}

	if err := store.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_records table: %w", err)
	}

	return store, nil
}

// ensureTable creates the audit_records table if it doesn't exist
func (s *DBStore) ensureTable(ctx context.Context) error {
	seq := "seq BIGSERIAL PRIMARY KEY"
	ts := "TIMESTAMP WITH TIME ZONE"
	if s.dialect.Name() != "postgres" {
		seq = "seq INTEGER PRIMARY KEY AUTOINCREMENT"
		ts = "TIMESTAMP"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_records (
		%s,
		id VARCHAR(64) NOT NULL UNIQUE,
		actor_user_id VARCHAR(64) NOT NULL,
		actor_name VARCHAR(255) NOT NULL DEFAULT '',
		actor_role VARCHAR(32) NOT NULL DEFAULT '',
		action VARCHAR(32) NOT NULL,
		resource_type VARCHAR(32) NOT NULL,
		resource_id VARCHAR(64) NOT NULL DEFAULT '',
		organization_id VARCHAR(64) NOT NULL,
		decision VARCHAR(16) NOT NULL,
		reason VARCHAR(64) NOT NULL DEFAULT '',
		timestamp %s NOT NULL
	)`, seq, ts),
		`CREATE INDEX IF NOT EXISTS idx_audit_records_org_timestamp ON audit_records(organization_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records(actor_user_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts an audit record
func (s *DBStore) Record(ctx context.Context, record Record) error {
	prepare(&record)

	query := s.dialect.Rebind(`
		INSERT INTO audit_records (
			id, actor_user_id, actor_name, actor_role,
			action, resource_type, resource_id, organization_id,
			decision, reason, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)`)

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.ActorUserID, record.ActorName, string(record.ActorRole),
		record.Action, string(record.ResourceType), record.ResourceID, record.OrganizationID,
		string(record.Decision), record.Reason, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// Query searches audit records for one organization
func (s *DBStore) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var where []string
	args := []interface{}{}
	argCount := 1

	where = append(where, fmt.Sprintf("organization_id = $%d", argCount))
	args = append(args, q.OrganizationID)
	argCount++

	if !q.Start.IsZero() {
		where = append(where, fmt.Sprintf("timestamp >= $%d", argCount))
		args = append(args, q.Start.UTC())
		argCount++
	}

	if !q.End.IsZero() {
		where = append(where, fmt.Sprintf("timestamp < $%d", argCount))
		args = append(args, q.End.UTC())
		argCount++
	}

	if q.ActorUserID != "" {
		where = append(where, fmt.Sprintf("actor_user_id = $%d", argCount))
		args = append(args, q.ActorUserID)
		argCount++
	}

	if q.Decision != "" {
		where = append(where, fmt.Sprintf("decision = $%d", argCount))
		args = append(args, string(q.Decision))
		argCount++
	}

	query := `
		SELECT
			id, actor_user_id, actor_name, actor_role,
			action, resource_type, resource_id, organization_id,
			decision, reason, timestamp
		FROM audit_records
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp ASC, seq ASC`

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var role, resourceType, decision string

		err := rows.Scan(
			&record.ID, &record.ActorUserID, &record.ActorName, &role,
			&record.Action, &resourceType, &record.ResourceID, &record.OrganizationID,
			&decision, &record.Reason, &record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		record.ActorRole = models.Role(role)
		record.ResourceType = models.ResourceType(resourceType)
		record.Decision = Decision(decision)
		record.Timestamp = record.Timestamp.UTC()

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// Close does not close the database connection as it is shared with the
// inventory adapter
func (s *DBStore) Close() error {
	return nil
}
