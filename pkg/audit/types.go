package audit

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/stockroom/pkg/models"
)

// Decision is the outcome recorded for an access check
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// SystemActorID identifies records written by the administrative channel
const SystemActorID = "system"

// Record is a single append-only audit entry. ActorName and ActorRole are
// snapshots taken at decision time so the record outlives the actor.
type Record struct {
	ID             string              `json:"id"`
	ActorUserID    string              `json:"actor_user_id"`
	ActorName      string              `json:"actor_name,omitempty"`
	ActorRole      models.Role         `json:"actor_role,omitempty"`
	Action         string              `json:"action"`
	ResourceType   models.ResourceType `json:"resource_type"`
	ResourceID     string              `json:"resource_id,omitempty"`
	OrganizationID string              `json:"organization_id"`
	Decision       Decision            `json:"decision"`
	Reason         string              `json:"reason,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// ToJSON converts the record to JSON
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record from JSON
func FromJSON(data []byte) (*Record, error) {
	var record Record
	err := json.Unmarshal(data, &record)
	return &record, err
}

// Query selects records for one organization. Start is inclusive and End is
// exclusive; zero values leave that side of the range open.
type Query struct {
	OrganizationID string
	Start          time.Time
	End            time.Time

	ActorUserID string
	Decision    Decision

	Limit int
}

// Matches reports whether a record satisfies the query filters
func (q Query) Matches(r *Record) bool {
	if r.OrganizationID != q.OrganizationID {
		return false
	}
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !r.Timestamp.Before(q.End) {
		return false
	}
	if q.ActorUserID != "" && r.ActorUserID != q.ActorUserID {
		return false
	}
	if q.Decision != "" && r.Decision != q.Decision {
		return false
	}
	return true
}

// ExportFormat represents the format for exporting audit records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Stats reports the health of an asynchronous recorder
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}
