package storagetest

import (
	"context"
	"sync"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Recorder wraps an adapter and records every data call made through it
type Recorder struct {
	storage.Adapter

	mu    sync.Mutex
	calls []string
}

// NewRecorder wraps next
func NewRecorder(next storage.Adapter) *Recorder {
	return &Recorder{Adapter: next}
}

func (r *Recorder) record(op string, resource models.ResourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+string(resource))
}

// Calls returns the recorded calls as "op:resource"
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns the number of recorded calls
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset forgets recorded calls
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	r.record("find", resource)
	return r.Adapter.Find(ctx, resource, filter)
}

func (r *Recorder) Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	r.record("insert", entity.Resource())
	return r.Adapter.Insert(ctx, organizationID, entity)
}

func (r *Recorder) Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) error {
	r.record("update", resource)
	return r.Adapter.Update(ctx, resource, organizationID, id, patch)
}

func (r *Recorder) Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	r.record("delete", resource)
	return r.Adapter.Delete(ctx, resource, organizationID, id)
}
