package nameserver

import "scribe.io/cache"

// cachedIndex wraps the generic LRU with the key/index vocabulary the
// registry's three-tier lookup uses. cache.LRU already serializes its own
// access, so this type adds no locking of its own.
type cachedIndex struct {
	lru *cache.LRU[string, int]
}

func newCachedIndex(size int) *cachedIndex {
	if size <= 0 {
		size = 1
	}
	return &cachedIndex{lru: cache.NewLRU[string, int](size)}
}

func (c *cachedIndex) get(key string) (int, bool) { return c.lru.Get(key) }

func (c *cachedIndex) add(key string, index int) { c.lru.Add(key, index) }

func (c *cachedIndex) remove(key string) { c.lru.Remove(key) }

// reindexIfPresent updates a cached index if the key is cached, used after
// a delete_file compaction shifts indices. The update also marks the entry
// as most recently used.
func (c *cachedIndex) reindexIfPresent(key string, index int) {
	if _, ok := c.lru.Get(key); ok {
		c.lru.Add(key, index)
	}
}
