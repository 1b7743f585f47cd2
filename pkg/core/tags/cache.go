//
//  Copyright © Manetu Inc. All rights reserved.
//

package tags

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
	"github.com/manetu/dataguard/pkg/core/types"
)

// Cache memoizes TagsFor results.  Keys include the snapshot version, so entries written for an
// older snapshot are never returned for a newer one and simply age out.
type Cache struct {
	cache  *ristretto.Cache
	closed atomic.Bool
	once   sync.Once
}

// NewCache creates a cache holding roughly size entries.
func NewCache(size int64) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tag cache size must be positive, got %d", size)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c}, nil
}

func cacheKey(version uint64, path types.ResourcePath) string {
	return fmt.Sprintf("%d|%s", version, path.String())
}

// Get returns cached tags.
func (c *Cache) Get(version uint64, path types.ResourcePath) ([]string, bool) {
	if c.closed.Load() {
		return nil, false
	}
	v, ok := c.cache.Get(cacheKey(version, path))
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

// Set stores tags.  Writes are buffered and may be dropped under contention.
func (c *Cache) Set(version uint64, path types.ResourcePath, tags []string) {
	if c.closed.Load() {
		return
	}
	c.cache.Set(cacheKey(version, path), tags, 1)
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() {
	if c.closed.Load() {
		return
	}
	c.cache.Wait()
}

// Close releases the cache goroutines.  Later lookups miss and later writes are dropped.
func (c *Cache) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		c.cache.Close()
	})
}

// Closed reports whether Close was called.
func (c *Cache) Closed() bool {
	return c.closed.Load()
}

// Resolver answers tag queries for one snapshot version, consulting the cache first.
type Resolver struct {
	index   *Index
	cache   *Cache
	version uint64
}

// NewResolver binds index to version.  cache may be nil.
func NewResolver(index *Index, cache *Cache, version uint64) *Resolver {
	return &Resolver{index: index, cache: cache, version: version}
}

// TagsFor returns the tags of path and its ancestors.
func (r *Resolver) TagsFor(path types.ResourcePath) []string {
	if r.cache != nil {
		if tags, ok := r.cache.Get(r.version, path); ok {
			return tags
		}
	}

	tags := r.index.TagsFor(path)
	if r.cache != nil {
		r.cache.Set(r.version, path, tags)
	}
	return tags
}

// Index returns the underlying index.
func (r *Resolver) Index() *Index {
	return r.index
}
