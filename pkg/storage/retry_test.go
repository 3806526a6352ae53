package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries timeouts until success", func(t *testing.T) {
		calls := 0
		got, err := Retry(ctx, fastRetry(), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", Timeout(models.ResourceWarehouse, context.DeadlineExceeded)
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, fastRetry(), func(context.Context) (int, error) {
			calls++
			return 0, NotFound(models.ResourceWarehouse, "w1")
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, fastRetry(), func(context.Context) (int, error) {
			calls++
			return 0, Unavailable(models.ResourceWarehouse, errors.New("connection refused"))
		})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 3, calls)
	})
}
