package core

import "container/list"

// DBIdempotencyChecker is the Postgres lookup behind the in-memory tier.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker deduplicates commands in two tiers: a bounded
// in-memory LRU over composite event_type:command_id keys, backed by the
// persisted event log for keys that have aged out. Not thread-safe; only
// accessed from the single-threaded deterministic core.
type IdempotencyChecker struct {
	cache     *dedupCache
	dbChecker DBIdempotencyChecker

	lruHits int64
	dbHits  int64
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		cache:     newDedupCache(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate reports whether the command was already applied. A failing
// database lookup counts as not-a-duplicate so a Postgres outage cannot
// stall command processing; replay catches anything admitted twice.
func (ic *IdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) bool {
	key := eventType + ":" + idempotencyKey

	if ic.cache.contains(key) {
		ic.lruHits++
		return true
	}

	if ic.dbChecker == nil {
		return false
	}
	isDup, err := ic.dbChecker.IsDuplicate(eventType, idempotencyKey)
	if err != nil || !isDup {
		return false
	}

	ic.dbHits++
	ic.cache.add(key)
	return true
}

// MarkProcessed records an applied command's key.
func (ic *IdempotencyChecker) MarkProcessed(eventType, idempotencyKey string) {
	ic.cache.add(eventType + ":" + idempotencyKey)
}

// Warm preloads composite keys recovered from the persisted log so recent
// commands dedup on the hot path after a restart.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, key := range keys {
		ic.cache.add(key)
	}
}

// Size returns the current LRU occupancy.
func (ic *IdempotencyChecker) Size() int { return ic.cache.entries.Len() }

// Evictions returns the total keys aged out of the LRU.
func (ic *IdempotencyChecker) Evictions() int64 { return ic.cache.evictions }

// dedupCache is a plain LRU over composite keys.
type dedupCache struct {
	capacity  int
	index     map[string]*list.Element
	entries   *list.List
	evictions int64
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		entries:  list.New(),
	}
}

func (c *dedupCache) contains(key string) bool {
	elem, ok := c.index[key]
	if ok {
		c.entries.MoveToFront(elem)
	}
	return ok
}

func (c *dedupCache) add(key string) {
	if elem, ok := c.index[key]; ok {
		c.entries.MoveToFront(elem)
		return
	}

	c.index[key] = c.entries.PushFront(key)

	if c.entries.Len() > c.capacity {
		oldest := c.entries.Back()
		c.entries.Remove(oldest)
		delete(c.index, oldest.Value.(string))
		c.evictions++
	}
}
