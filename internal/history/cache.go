package history

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	key               string
	summary           string
	prefixMessageCount int
	prefixCharCount    int
	updatedAt          time.Time
}

// SummaryCache is a small LRU keyed by session cache key, reusing a summary across retries
// for the same session only while the pre-summary prefix hasn't grown too much. Modeled on
// sdk/translator/cache.go's map+doubly-linked-list LRU shape.
type SummaryCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	order    *list.List
}

func NewSummaryCache(maxSize int) *SummaryCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &SummaryCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns a cached summary for key iff it passes the reuse predicate from spec §4.H:
// the prefix grew by fewer than minDeltaMessages AND minDeltaChars since the entry was
// written, and the entry isn't older than maxAge (maxAge<=0 disables the age check).
func (c *SummaryCache) Get(key string, prefixMessageCount, prefixCharCount, minDeltaMessages, minDeltaChars int, maxAge time.Duration) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*cacheEntry)

	if maxAge > 0 && time.Since(entry.updatedAt) > maxAge {
		c.removeLocked(el)
		return "", false
	}
	if prefixMessageCount-entry.prefixMessageCount >= minDeltaMessages {
		return "", false
	}
	if prefixCharCount-entry.prefixCharCount >= minDeltaChars {
		return "", false
	}

	c.order.MoveToFront(el)
	return entry.summary, true
}

func (c *SummaryCache) Set(key, summary string, prefixMessageCount, prefixCharCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.summary = summary
		entry.prefixMessageCount = prefixMessageCount
		entry.prefixCharCount = prefixCharCount
		entry.updatedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}

	entry := &cacheEntry{
		key:                key,
		summary:            summary,
		prefixMessageCount: prefixMessageCount,
		prefixCharCount:    prefixCharCount,
		updatedAt:          time.Now(),
	}
	el := c.order.PushFront(entry)
	c.entries[key] = el

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

func (c *SummaryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
