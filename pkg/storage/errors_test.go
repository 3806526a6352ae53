package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/stockroom/pkg/models"
)

func TestError_Is(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
	}{
		{"not found", NotFound(models.ResourceWarehouse, "w1"), ErrNotFound, false},
		{"constraint", Constraint(models.ResourceInventoryItem, ConstraintSKU, nil), ErrConstraintViolation, false},
		{"timeout", Timeout(models.ResourceUser, context.DeadlineExceeded), ErrTimeout, true},
		{"unavailable", Unavailable(models.ResourceUser, errors.New("connection refused")), ErrUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("repository: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
			for _, other := range []error{ErrNotFound, ErrConstraintViolation, ErrTimeout, ErrUnavailable} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Constraint(models.ResourceInventoryItem, ConstraintSKU, errors.New("sku \"A\" already exists"))
	assert.Equal(t, `inventory_item constraint_violation (sku): sku "A" already exists`, err.Error())

	assert.Equal(t, "warehouse w1: not_found", NotFound(models.ResourceWarehouse, "w1").Error())
}

func TestConstraintOf(t *testing.T) {
	c, ok := ConstraintOf(fmt.Errorf("wrap: %w", Constraint(models.ResourceInventoryItem, ConstraintWarehouseRef, nil)))
	assert.True(t, ok)
	assert.Equal(t, ConstraintWarehouseRef, c)

	_, ok = ConstraintOf(NotFound(models.ResourceWarehouse, "w1"))
	assert.False(t, ok)
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background(), models.ResourceUser))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FromContext(ctx, models.ResourceUser)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}
