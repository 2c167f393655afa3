package resolver

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/pkg/types"
)

// entityCache holds the full entity catalog with TTL-based lazy refresh.
// Expired reads trigger one refresh shared across concurrent callers via
// singleflight; while a refresh is in flight, other readers get the stale
// snapshot instead of blocking.
type entityCache struct {
	store storage.Store
	ttl   time.Duration

	mu        sync.RWMutex
	entities  []*types.Entity
	byKey     map[string]*types.Entity // normalized_name|type -> entity
	fetchedAt time.Time

	group singleflight.Group
}

func newEntityCache(store storage.Store, ttl time.Duration) *entityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &entityCache{store: store, ttl: ttl}
}

// snapshot returns the cached catalog, refreshing when expired. A failed
// refresh falls back to the previous snapshot when one exists.
func (c *entityCache) snapshot(ctx context.Context) ([]*types.Entity, error) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl && c.entities != nil
	entities := c.entities
	hasPrior := c.fetchedAt != (time.Time{})
	c.mu.RUnlock()

	if fresh {
		return entities, nil
	}

	result, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		loaded, err := c.store.GetAllEntities(ctx, "", 0, 0)
		if err != nil {
			return nil, err
		}
		c.set(loaded)
		return loaded, nil
	})
	if err != nil {
		if hasPrior {
			return entities, nil
		}
		return nil, err
	}
	return result.([]*types.Entity), nil
}

// lookup finds an entity by normalized name and type in the cached
// catalog. Returns nil on miss; the caller decides whether to hit the
// store directly.
func (c *entityCache) lookup(name, entityType string) *types.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.byKey == nil {
		return nil
	}
	return c.byKey[types.NormalizeName(name)+"|"+entityType]
}

// invalidate drops the snapshot so the next read refreshes. Called after
// writes that add entities.
func (c *entityCache) invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *entityCache) set(entities []*types.Entity) {
	byKey := make(map[string]*types.Entity, len(entities))
	for _, e := range entities {
		byKey[e.NormalizedName+"|"+e.Type] = e
	}
	c.mu.Lock()
	c.entities = entities
	c.byKey = byKey
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}
