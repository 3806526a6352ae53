package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
	"github.com/platinummonkey/stockroom/pkg/storage/storagetest"
)

func TestAdapter(t *testing.T) {
	storagetest.RunAdapterTests(t, func(t *testing.T) storage.Adapter {
		return New()
	})
}

func TestAdapter_FindReturnsClones(t *testing.T) {
	a := New()
	f := storagetest.Seed(t, a)
	ctx := context.Background()

	got, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].(*models.Warehouse).Name = "mutated"

	again, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	assert.Equal(t, "Main", again[0].(*models.Warehouse).Name)
}

func TestAdapter_InsertRequiresOrganization(t *testing.T) {
	a := New()
	ctx := context.Background()

	_, err := a.Insert(ctx, "missing-org", &models.Warehouse{Name: "Orphan"})
	require.ErrorIs(t, err, storage.ErrConstraintViolation)
	constraint, _ := storage.ConstraintOf(err)
	assert.Equal(t, storage.ConstraintOrganizationRef, constraint)

	_, err = a.Insert(ctx, "", &models.Warehouse{Name: "Orphan"})
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestAdapter_ExpiredContext(t *testing.T) {
	a := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: "org"})
	assert.ErrorIs(t, err, storage.ErrTimeout)
	assert.True(t, storage.IsRetryable(err))
}

func TestAdapter_Closed(t *testing.T) {
	a := New()
	require.NoError(t, a.Close())

	ctx := context.Background()
	assert.ErrorIs(t, a.Ping(ctx), storage.ErrUnavailable)

	_, err := a.Insert(ctx, "org", &models.Organization{ID: "org", Name: "Acme"})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestAdapter_Len(t *testing.T) {
	a := New()
	storagetest.Seed(t, a)
	assert.Equal(t, 2, a.Len(models.ResourceOrganization))
	assert.Equal(t, 2, a.Len(models.ResourceWarehouse))
	assert.Equal(t, 0, a.Len(models.ResourceInventoryItem))
}
