package pipeline

import (
	"sync"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// shardCache is a thread-safe LRU of shard partials. The archive pass reads
// the same shards as the year passes, so their partials are kept here and
// merged again instead of re-reading the files. A cache with no capacity
// stores nothing.
type shardCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value Partial
	prev  *entry
	next  *entry
}

func newShardCache(maxEntries int) *shardCache {
	return &shardCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *shardCache) get(sh domain.Shard) (Partial, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sh.Key()]
	if !ok {
		return Partial{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *shardCache) put(sh domain.Shard, value Partial) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := sh.Key()
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *shardCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *shardCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *shardCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *shardCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *shardCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
