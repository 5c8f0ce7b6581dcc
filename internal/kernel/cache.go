package kernel

import (
	"container/list"
	"sync"

	"github.com/pronunciapa/pronunciapa/internal/pipeline"
)

// defaultCacheSize bounds the number of prepared runners kept alive.
const defaultCacheSize = 16

// cacheEntry is one cached construction outcome. Failed constructions are
// cached negatively (runner nil, err set) so a broken configuration does
// not get rebuilt on every request; Reload clears them.
type cacheEntry struct {
	key    string
	runner *pipeline.Runner
	err    error
}

// runnerCache is a bounded LRU of prepared pipeline runners keyed by
// fingerprint. Safe for concurrent use. Entries are immutable once stored.
type runnerCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List               // front = most recently used
	items map[string]*list.Element // key → element whose Value is *cacheEntry
}

func newRunnerCache(capacity int) *runnerCache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	return &runnerCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// get returns the cached entry for key, marking it most recently used.
func (c *runnerCache) get(key string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry), true
}

// put stores an entry, evicting the least recently used one past capacity.
func (c *runnerCache) put(entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[entry.key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	c.items[entry.key] = c.order.PushFront(entry)
	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// remove drops one key. In-flight invocations keep using the runner they
// already resolved.
func (c *runnerCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// clear drops every entry.
func (c *runnerCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
}

// len reports the current entry count.
func (c *runnerCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
