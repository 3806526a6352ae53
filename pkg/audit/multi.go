package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiStore writes every record to several stores and reads from the first
type MultiStore struct {
	stores []Store
}

// NewMultiStore creates a store that fans out to the given stores. The first
// store answers queries.
func NewMultiStore(stores ...Store) (*MultiStore, error) {
	if len(stores) == 0 {
		return nil, errors.New("audit: at least one store is required")
	}
	return &MultiStore{stores: stores}, nil
}

// Record writes to every store, continuing past failures, and returns the
// first error
func (m *MultiStore) Record(ctx context.Context, record Record) error {
	prepare(&record)

	var firstErr error
	for _, store := range m.stores {
		if err := store.Record(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Query reads from the primary store
func (m *MultiStore) Query(ctx context.Context, q Query) ([]Record, error) {
	return m.stores[0].Query(ctx, q)
}

// Close closes all stores
func (m *MultiStore) Close() error {
	var firstErr error
	for _, store := range m.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audit store: %w", err)
		}
	}
	return firstErr
}
