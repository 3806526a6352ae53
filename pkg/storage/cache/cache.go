// Package cache provides a read-through caching decorator for any
// storage.Adapter.
//
// Only single-entity lookups (a Find with an ID and no field filters) are
// cached. The first layer is an in-process expirable LRU; the optional second
// layer is Redis, shared between replicas. Concurrent misses for the same key
// are collapsed into one adapter call. Update and Delete invalidate the
// affected keys after the underlying write succeeds, including the items
// removed by a warehouse cascade.
//
// A miss only populates the cache when no invalidation ran while the adapter
// was being read. Locally that is tracked by an epoch counter; in Redis by a
// per-key generation checked under WATCH. Invalidations are also published on
// a Redis channel so that every replica drops the key from its own L1.
//
// Cache keys embed the organization, so a cached entity is never served to a
// lookup scoped to another tenant.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// InvalidationChannel carries the JSON-encoded keys dropped by a write
const InvalidationChannel = "stockroom:cache:invalidate"

// subscribeTimeout bounds the wait for the invalidation subscription
const subscribeTimeout = 2 * time.Second

// Options configures the caching adapter
type Options struct {
	// Size is the L1 capacity in entries
	Size int
	// TTL bounds how long an entry may be served from either layer
	TTL time.Duration
	// Redis enables the L2 layer when non-nil
	Redis *redis.Client
	// Metrics records hits and misses when non-nil
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// Adapter decorates a storage.Adapter with caching
type Adapter struct {
	next    storage.Adapter
	l1      *expirable.LRU[string, models.Entity]
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
	logger  logrus.FieldLogger

	// epoch advances on every invalidation, local or published
	epoch atomic.Uint64

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   sync.WaitGroup
}

var _ storage.Adapter = (*Adapter)(nil)

// New wraps next with caching
func New(next storage.Adapter, opts Options) *Adapter {
	if opts.Size <= 0 {
		opts.Size = 10000
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	a := &Adapter{
		next:    next,
		l1:      expirable.NewLRU[string, models.Entity](opts.Size, nil, opts.TTL),
		redis:   opts.Redis,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if a.redis != nil {
		a.subscribe()
	}
	return a
}

// subscribe listens for invalidations published by other replicas
func (a *Adapter) subscribe() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.pubsub = a.redis.Subscribe(ctx, InvalidationChannel)

	confirmCtx, confirmCancel := context.WithTimeout(ctx, subscribeTimeout)
	if _, err := a.pubsub.Receive(confirmCtx); err != nil {
		a.logger.WithError(err).Warn("Cache invalidation subscription not confirmed")
	}
	confirmCancel()

	a.done.Add(1)
	go func() {
		defer a.done.Done()
		for {
			msg, err := a.pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				a.logger.WithError(err).Warn("Cache invalidation receive failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			var keys []string
			if err := json.Unmarshal([]byte(msg.Payload), &keys); err != nil {
				a.logger.WithField("payload", msg.Payload).Warn("Dropping malformed cache invalidation")
				continue
			}
			a.dropLocal(keys...)
		}
	}()
}

func cacheKey(resource models.ResourceType, organizationID, id string) string {
	return fmt.Sprintf("stockroom:%s:%s:%s", resource, organizationID, id)
}

func generationKey(key string) string {
	return key + ":gen"
}

// Find serves single-entity lookups from cache and passes everything else through
func (a *Adapter) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	if filter.ID == "" || len(filter.Fields) > 0 || filter.OrganizationID == "" {
		return a.next.Find(ctx, resource, filter)
	}

	key := cacheKey(resource, filter.OrganizationID, filter.ID)
	if e, ok := a.l1.Get(key); ok {
		a.record(resource, "l1", true)
		return []models.Entity{e.Clone()}, nil
	}
	a.record(resource, "l1", false)

	// a lookup that starts after an invalidation must not join an older flight
	epoch := a.epoch.Load()
	v, err, _ := a.group.Do(fmt.Sprintf("%s@%d", key, epoch), func() (any, error) {
		if e, ok := a.getRedis(ctx, resource, key); ok {
			a.record(resource, "l2", true)
			a.addLocal(key, e, epoch)
			return []models.Entity{e}, nil
		}
		if a.redis != nil {
			a.record(resource, "l2", false)
		}

		generation := a.generation(ctx, key)
		found, err := a.next.Find(ctx, resource, filter)
		if err != nil {
			return nil, err
		}
		if len(found) == 1 && a.setRedis(ctx, key, generation, found[0]) {
			a.addLocal(key, found[0].Clone(), epoch)
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.([]models.Entity)
	result := make([]models.Entity, len(shared))
	for i, e := range shared {
		result[i] = e.Clone()
	}
	return result, nil
}

// Insert passes through; nothing cached can describe an entity that did not exist
func (a *Adapter) Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	return a.next.Insert(ctx, organizationID, entity)
}

// Update writes through and invalidates the entity
func (a *Adapter) Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) error {
	if err := a.next.Update(ctx, resource, organizationID, id, patch); err != nil {
		return err
	}
	a.invalidate(ctx, cacheKey(resource, organizationID, id))
	return nil
}

// Delete writes through and invalidates the entity and, for warehouses, the
// cascaded items
func (a *Adapter) Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	var cascaded []models.Entity
	if resource == models.ResourceWarehouse {
		var err error
		cascaded, err = a.next.Find(ctx, models.ResourceInventoryItem, storage.Filter{
			OrganizationID: organizationID,
			Fields:         map[string]any{"warehouse_id": id},
		})
		if err != nil {
			return err
		}
	}

	if err := a.next.Delete(ctx, resource, organizationID, id); err != nil {
		return err
	}

	keys := []string{cacheKey(resource, organizationID, id)}
	for _, item := range cascaded {
		keys = append(keys, cacheKey(models.ResourceInventoryItem, organizationID, item.GetID()))
	}
	a.invalidate(ctx, keys...)
	return nil
}

// Ping checks the wrapped adapter
func (a *Adapter) Ping(ctx context.Context) error {
	return a.next.Ping(ctx)
}

// Close stops the invalidation listener, purges the cache and closes the
// wrapped adapter. The Redis client stays open.
func (a *Adapter) Close() error {
	if a.cancel != nil {
		a.cancel()
		_ = a.pubsub.Close()
		a.done.Wait()
	}
	a.l1.Purge()
	return a.next.Close()
}

// Len returns the number of L1 entries
func (a *Adapter) Len() int {
	return a.l1.Len()
}

// addLocal stores e in L1 unless an invalidation ran since epoch was read
func (a *Adapter) addLocal(key string, e models.Entity, epoch uint64) {
	if a.epoch.Load() != epoch {
		return
	}
	a.l1.Add(key, e)
	// an invalidation may have landed between the check and the add
	if a.epoch.Load() != epoch {
		a.l1.Remove(key)
	}
}

func (a *Adapter) dropLocal(keys ...string) {
	a.epoch.Add(1)
	for _, key := range keys {
		a.l1.Remove(key)
	}
}

func (a *Adapter) invalidate(ctx context.Context, keys ...string) {
	a.dropLocal(keys...)
	if a.redis == nil {
		return
	}

	_, err := a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.PExpire(ctx, generationKey(key), 2*a.ttl)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		a.logger.WithError(err).Warn("Failed to invalidate redis cache keys")
	}

	payload, _ := json.Marshal(keys)
	if err := a.redis.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		a.logger.WithError(err).Warn("Failed to publish cache invalidation")
	}
}

// generation reads the invalidation count of key, zero when unknown
func (a *Adapter) generation(ctx context.Context, key string) int64 {
	if a.redis == nil {
		return 0
	}
	g, err := a.redis.Get(ctx, generationKey(key)).Int64()
	if err != nil && err != redis.Nil {
		a.logger.WithError(err).Debug("Redis cache generation read failed")
	}
	return g
}

func (a *Adapter) getRedis(ctx context.Context, resource models.ResourceType, key string) (models.Entity, bool) {
	if a.redis == nil {
		return nil, false
	}
	data, err := a.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	} else if err != nil {
		a.logger.WithError(err).Warn("Redis cache read failed")
		return nil, false
	}

	e := models.NewEntity(resource)
	if err := json.Unmarshal(data, e); err != nil {
		// drop corrupt data
		a.redis.Del(ctx, key)
		return nil, false
	}
	return e, true
}

// setRedis stores e unless key was invalidated after generation was read.
// It reports whether the entry may also be cached locally.
func (a *Adapter) setRedis(ctx context.Context, key string, generation int64, e models.Entity) bool {
	if a.redis == nil {
		return true
	}
	data, err := json.Marshal(e)
	if err != nil {
		return false
	}

	genKey := generationKey(key)
	stale := false
	err = a.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != generation {
			stale = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, a.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return false
	case err != nil:
		// Redis is unreachable, so there is no shared state to disagree with
		a.logger.WithError(err).Warn("Redis cache write failed")
		return true
	}
	return !stale
}

func (a *Adapter) record(resource models.ResourceType, layer string, hit bool) {
	if a.metrics == nil {
		return
	}
	if hit {
		a.metrics.CacheHitsTotal.WithLabelValues(layer, string(resource)).Inc()
	} else {
		a.metrics.CacheMissesTotal.WithLabelValues(layer, string(resource)).Inc()
	}
}
