package jsast

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cache holds parsed files keyed by path. Entries expire after ttl and the
// least recently used entry is evicted beyond size. Evicted trees are left
// to the garbage collector since callers may still hold their nodes.
type Cache struct {
	lru   *expirable.LRU[string, *File]
	group singleflight.Group
}

// NewCache creates a cache. size <= 0 means 256 entries, ttl <= 0 means
// three minutes.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Cache{
		lru: expirable.NewLRU[string, *File](size, nil, ttl),
	}
}

// Get returns the parsed file at path, parsing it on a miss.
func (c *Cache) Get(ctx context.Context, path string) (*File, error) {
	if f, ok := c.lru.Get(path); ok {
		return f, nil
	}
	v, err, _ := c.group.Do(path, func() (any, error) {
		if f, ok := c.lru.Get(path); ok {
			return f, nil
		}
		f, err := ParseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		c.lru.Add(path, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// Len reports the number of cached files.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }
