package inventory

import (
	"context"
	"fmt"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// Directory resolves caller identities to users. Lookups are confined to the
// organization the caller claims.
type Directory struct {
	adapter storage.Adapter
	retry   storage.RetryConfig
}

// NewDirectory creates a directory over adapter
func NewDirectory(adapter storage.Adapter) *Directory {
	return &Directory{adapter: adapter, retry: storage.DefaultRetryConfig()}
}

// Resolve returns the user with userID inside organizationID, or
// ErrUnknownActor when there is none
func (d *Directory) Resolve(ctx context.Context, organizationID, userID string) (*models.User, error) {
	if organizationID == "" || userID == "" {
		return nil, ErrUnknownActor
	}
	entities, err := storage.Retry(ctx, d.retry, func(ctx context.Context) ([]models.Entity, error) {
		return d.adapter.Find(ctx, models.ResourceUser, storage.Filter{OrganizationID: organizationID, ID: userID})
	})
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: user %s in organization %s", ErrUnknownActor, userID, organizationID)
	}
	return entities[0].(*models.User), nil
}
