package engine

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry is a built summary along with the kind hash it was built from.
type cacheEntry struct {
	hash    uint32
	summary ViewSummary
}

// summaryCache holds view summaries keyed by "kind:namespace".
type summaryCache struct {
	entries *lru.Cache[string, cacheEntry]
}

func newSummaryCache(size int) (*summaryCache, error) {
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &summaryCache{entries: c}, nil
}

func cacheKey(kind, namespace string) string {
	return kind + ":" + namespace
}

// get returns the cached summary if it was built from hash. A stale entry is
// evicted.
func (c *summaryCache) get(key string, hash uint32) (ViewSummary, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return ViewSummary{}, false
	}
	if entry.hash != hash {
		c.entries.Remove(key)
		return ViewSummary{}, false
	}
	return entry.summary, true
}

func (c *summaryCache) put(key string, hash uint32, s ViewSummary) {
	c.entries.Add(key, cacheEntry{hash: hash, summary: s})
}

// invalidateKind drops every entry of kind, across namespaces.
func (c *summaryCache) invalidateKind(kind string) {
	prefix := kind + ":"
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

func (c *summaryCache) purge() {
	c.entries.Purge()
}

func (c *summaryCache) count() int {
	return c.entries.Len()
}
