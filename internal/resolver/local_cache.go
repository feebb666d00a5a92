package resolver

import (
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru"
)

const defaultL1Size = 10000

type localItem struct {
	entry     entry
	expiresAt time.Time
}

// localCache is the in-process tier. The LRU bounds memory; every item also
// carries its own deadline so positive and negative entries can age differently.
type localCache struct {
	items *lru.Cache
	clock clock.Clock
}

func newLocalCache(size int, clk clock.Clock) (*localCache, error) {
	if size <= 0 {
		size = defaultL1Size
	}
	items, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &localCache{items: items, clock: clk}, nil
}

func (c *localCache) Get(key string) (entry, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return entry{}, false
	}
	item := v.(localItem)
	if !c.clock.Now().Before(item.expiresAt) {
		c.items.Remove(key)
		return entry{}, false
	}
	return item.entry, true
}

func (c *localCache) Set(key string, e entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.items.Add(key, localItem{entry: e, expiresAt: c.clock.Now().Add(ttl)})
}

func (c *localCache) Remove(key string) {
	c.items.Remove(key)
}

func (c *localCache) Len() int {
	return c.items.Len()
}
