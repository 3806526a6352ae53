package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends a record
func (s *MemoryStore) Record(ctx context.Context, record Record) error {
	prepare(&record)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Query returns matching records in timestamp order
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, 0)
	for i := range s.records {
		if !q.Matches(&s.records[i]) {
			continue
		}
		result = append(result, s.records[i])
	}
	return ordered(result, q.Limit), nil
}

// All returns a copy of every record, across organizations
func (s *MemoryStore) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
