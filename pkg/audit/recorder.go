package audit

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMissingOrganization is returned by Query without an organization
	ErrMissingOrganization = errors.New("audit: query requires an organization")
	// ErrClosed is returned when recording after Close
	ErrClosed = errors.New("audit: recorder closed")
)

// Recorder appends audit records. Records are never updated or deleted.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// Reader queries recorded audit records in timestamp order
type Reader interface {
	Query(ctx context.Context, q Query) ([]Record, error)
}

// Store is a durable sink that can be both written and read
type Store interface {
	Recorder
	Reader
	Close() error
}

// prepare fills the generated fields of a record
func prepare(record *Record) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Timestamp = record.Timestamp.UTC()
}

func validateQuery(q Query) error {
	if q.OrganizationID == "" {
		return ErrMissingOrganization
	}
	return nil
}

// ordered sorts records by timestamp, keeping write order for ties, and
// then applies the query limit
func ordered(records []Record, limit int) []Record {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(ctx context.Context, record Record) error

func (f RecorderFunc) Record(ctx context.Context, record Record) error {
	return f(ctx, record)
}
