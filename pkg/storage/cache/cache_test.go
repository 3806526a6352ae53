package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
	"github.com/platinummonkey/stockroom/pkg/storage/memory"
	"github.com/platinummonkey/stockroom/pkg/storage/storagetest"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// gatedAdapter parks the first Find after it has read from the wrapped
// adapter until release is closed
type gatedAdapter struct {
	storage.Adapter
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newGatedAdapter(next storage.Adapter) *gatedAdapter {
	return &gatedAdapter{Adapter: next, reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedAdapter) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	found, err := g.Adapter.Find(ctx, resource, filter)
	g.once.Do(func() {
		close(g.reached)
		<-g.release
	})
	return found, err
}

func TestAdapter_Suite(t *testing.T) {
	storagetest.RunAdapterTests(t, func(t *testing.T) storage.Adapter {
		return New(memory.New(), Options{Size: 100})
	})
}

func TestAdapter_SuiteWithRedis(t *testing.T) {
	storagetest.RunAdapterTests(t, func(t *testing.T) storage.Adapter {
		_, client := setupRedis(t)
		return New(memory.New(), Options{Size: 100, Redis: client})
	})
}

func TestAdapter_ServesRepeatLookupsFromL1(t *testing.T) {
	rec := storagetest.NewRecorder(memory.New())
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	a := New(rec, Options{Size: 10, Metrics: metrics})
	f := storagetest.Seed(t, a)
	ctx := context.Background()
	rec.Reset()

	filter := storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID}
	for i := 0; i < 3; i++ {
		got, err := a.Find(ctx, models.ResourceWarehouse, filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, f.WH1, got[0])
	}

	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("l1", "warehouse")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("l1", "warehouse")))
}

func TestAdapter_CachedEntitiesAreIsolatedCopies(t *testing.T) {
	a := New(memory.New(), Options{Size: 10})
	f := storagetest.Seed(t, a)
	ctx := context.Background()

	filter := storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID}
	got, err := a.Find(ctx, models.ResourceWarehouse, filter)
	require.NoError(t, err)
	got[0].(*models.Warehouse).Name = "mutated"

	again, err := a.Find(ctx, models.ResourceWarehouse, filter)
	require.NoError(t, err)
	assert.Equal(t, "Main", again[0].(*models.Warehouse).Name)
}

func TestAdapter_KeysAreTenantScoped(t *testing.T) {
	a := New(memory.New(), Options{Size: 10})
	f := storagetest.Seed(t, a)
	ctx := context.Background()

	_, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)

	got, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org2.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAdapter_UpdateInvalidates(t *testing.T) {
	a := New(memory.New(), Options{Size: 10})
	f := storagetest.Seed(t, a)
	ctx := context.Background()

	item := storagetest.NewItem(f.WH1, "SKU001", 10)
	_, err := a.Insert(ctx, f.Org1.ID, item)
	require.NoError(t, err)

	filter := storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID}
	_, err = a.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)

	require.NoError(t, a.Update(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID, storage.Patch{"quantity": 4}))

	got, err := a.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].(*models.InventoryItem).Quantity)
}

func TestAdapter_ReadRacingUpdateIsNotCached(t *testing.T) {
	for name, withRedis := range map[string]bool{"l1 only": false, "with redis": true} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backing := memory.New()
			f := storagetest.Seed(t, backing)
			item := storagetest.NewItem(f.WH1, "SKU001", 10)
			_, err := backing.Insert(ctx, f.Org1.ID, item)
			require.NoError(t, err)

			opts := Options{Size: 10, TTL: time.Minute}
			if withRedis {
				_, opts.Redis = setupRedis(t)
			}
			gated := newGatedAdapter(backing)
			a := New(gated, opts)
			filter := storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID}

			done := make(chan struct{})
			go func() {
				defer close(done)
				got, err := a.Find(ctx, models.ResourceInventoryItem, filter)
				assert.NoError(t, err)
				if assert.Len(t, got, 1) {
					assert.Equal(t, int64(10), got[0].(*models.InventoryItem).Quantity)
				}
			}()

			<-gated.reached
			require.NoError(t, a.Update(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID, storage.Patch{"quantity": 3}))
			close(gated.release)
			<-done

			got, err := a.Find(ctx, models.ResourceInventoryItem, filter)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, int64(3), got[0].(*models.InventoryItem).Quantity)
		})
	}
}

func TestAdapter_ReplicasDropEntriesUpdatedElsewhere(t *testing.T) {
	mr, clientA := setupRedis(t)
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { clientB.Close() })

	ctx := context.Background()
	backing := memory.New()
	f := storagetest.Seed(t, backing)
	item := storagetest.NewItem(f.WH1, "SKU001", 10)
	_, err := backing.Insert(ctx, f.Org1.ID, item)
	require.NoError(t, err)

	replicaA := New(backing, Options{Size: 10, TTL: time.Minute, Redis: clientA})
	replicaB := New(backing, Options{Size: 10, TTL: time.Minute, Redis: clientB})
	filter := storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID}

	got, err := replicaA.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, replicaA.Len())

	require.NoError(t, replicaB.Update(ctx, models.ResourceInventoryItem, f.Org1.ID, item.ID, storage.Patch{"quantity": 3}))

	require.Eventually(t, func() bool { return replicaA.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	got, err = replicaA.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].(*models.InventoryItem).Quantity)
}

func TestAdapter_StaleGenerationSkipsRedisWrite(t *testing.T) {
	mr, client := setupRedis(t)
	backing := memory.New()
	f := storagetest.Seed(t, backing)
	ctx := context.Background()

	a := New(backing, Options{Size: 10, Redis: client})
	key := cacheKey(models.ResourceWarehouse, f.Org1.ID, f.WH1.ID)
	_, err := mr.Incr(generationKey(key), 1)
	require.NoError(t, err)

	assert.False(t, a.setRedis(ctx, key, 0, f.WH1))
	assert.False(t, mr.Exists(key))

	assert.True(t, a.setRedis(ctx, key, 1, f.WH1))
	assert.True(t, mr.Exists(key))
}

func TestAdapter_WarehouseDeleteInvalidatesCascadedItems(t *testing.T) {
	_, client := setupRedis(t)
	a := New(memory.New(), Options{Size: 10, Redis: client})
	f := storagetest.Seed(t, a)
	ctx := context.Background()

	item := storagetest.NewItem(f.WH1, "SKU001", 10)
	_, err := a.Insert(ctx, f.Org1.ID, item)
	require.NoError(t, err)

	filter := storage.Filter{OrganizationID: f.Org1.ID, ID: item.ID}
	got, err := a.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, a.Delete(ctx, models.ResourceWarehouse, f.Org1.ID, f.WH1.ID))

	got, err = a.Find(ctx, models.ResourceInventoryItem, filter)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAdapter_SharesEntriesThroughRedis(t *testing.T) {
	mr, client := setupRedis(t)
	backing := memory.New()
	f := storagetest.Seed(t, backing)
	ctx := context.Background()

	first := New(backing, Options{Size: 10, Redis: client, TTL: time.Minute})
	_, err := first.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	assert.True(t, mr.Exists(cacheKey(models.ResourceWarehouse, f.Org1.ID, f.WH1.ID)))

	rec := storagetest.NewRecorder(backing)
	second := New(rec, Options{Size: 10, Redis: client, TTL: time.Minute})
	got, err := second.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.WH1, got[0])
	assert.Zero(t, rec.Count())
}

func TestAdapter_DropsCorruptRedisEntries(t *testing.T) {
	mr, client := setupRedis(t)
	backing := memory.New()
	f := storagetest.Seed(t, backing)
	ctx := context.Background()

	key := cacheKey(models.ResourceWarehouse, f.Org1.ID, f.WH1.ID)
	require.NoError(t, mr.Set(key, "{not json"))

	a := New(backing, Options{Size: 10, Redis: client})
	got, err := a.Find(ctx, models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.WH1, got[0])

	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.NotEqual(t, "{not json", value)
}

func TestAdapter_RedisOutageFallsThrough(t *testing.T) {
	mr, client := setupRedis(t)
	backing := memory.New()
	f := storagetest.Seed(t, backing)
	mr.Close()

	a := New(backing, Options{Size: 10, Redis: client})
	got, err := a.Find(context.Background(), models.ResourceWarehouse, storage.Filter{OrganizationID: f.Org1.ID, ID: f.WH1.ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	client.Close()

	cfg.RedisURL = "not-a-url"
	_, err = NewRedisClient(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)

	addr := mr.Addr()
	mr.Close()
	cfg.RedisURL = "redis://" + addr
	cfg.OperationTimeout = time.Second
	_, err = NewRedisClient(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestRedisOptions(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://:secret@localhost:6379/2"
	cfg.RedisPoolSize = 7
	cfg.OperationTimeout = 4 * time.Second

	opts, err := redisOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 4*time.Second, opts.DialTimeout)

	cfg.RedisDB = 5
	cfg.OperationTimeout = 10 * time.Millisecond
	opts, err = redisOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, opts.DB)
	assert.Equal(t, minRedisTimeout, opts.ReadTimeout)

	cfg.RedisURL = ""
	_, err = redisOptions(cfg)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}
