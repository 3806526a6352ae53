package sqlstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// openSQLite opens a private in-memory SQLite store with migrations applied
func openSQLite(t *testing.T) *Store {
	t.Helper()

	cfg := storage.DefaultConfig()
	cfg.Type = storage.TypeSQLite
	cfg.SQLitePath = fmt.Sprintf("file:%s?mode=memory&cache=shared", models.NewID())

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
