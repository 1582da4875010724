// Package cache memoizes search results keyed by a normalized query
// fingerprint, with TTL expiry and an LRU entry bound.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
)

const (
	// DefaultTTL is how long an entry stays servable after insertion.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxEntries bounds the cache so TTL churn cannot grow it without
	// limit.
	DefaultMaxEntries = 512
)

// Entry is the cached payload for one fingerprint: the full filtered and
// ranked result list before pagination, so every page of the same query
// reuses a single entry.
type Entry struct {
	Businesses []entity.BusinessWithRelations
	Total      int
}

// SearchCache is a process-wide TTL+LRU cache for search results. It is
// constructed explicitly and injected into the search service; tests supply
// their own isolated instance.
type SearchCache struct {
	lru    *expirable.LRU[string, Entry]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a cache bounded by maxEntries with the given TTL. Non-positive
// arguments fall back to the package defaults.
func New(maxEntries int, ttl time.Duration) *SearchCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SearchCache{
		lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl),
	}
}

// Get returns the entry for key if present and unexpired, recording a hit or
// miss either way.
func (c *SearchCache) Get(key string) (Entry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	c.hits.Add(1)
	return entry, true
}

// Set stores the entry under key. Concurrent writes to the same key are
// last-write-wins; readers never observe a partial entry.
func (c *SearchCache) Set(key string, entry Entry) {
	c.lru.Add(key, entry)
}

// Invalidate removes every entry whose key starts with prefix and returns
// the number removed. An empty prefix purges the whole cache.
func (c *SearchCache) Invalidate(prefix string) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Stats returns the aggregate hit and miss counters.
func (c *SearchCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the current number of live entries.
func (c *SearchCache) Len() int {
	return c.lru.Len()
}

// Fingerprint derives the cache key for a normalized query. Pagination is
// excluded: pages of the same query share one entry and slicing happens
// after retrieval. Structurally equal queries always collide because the
// serialization is a key-sorted map with sorted set values.
func Fingerprint(q dto.SearchQuery) string {
	fields := map[string]any{}
	if q.FreeText != "" {
		fields["q"] = q.FreeText
	}
	if q.CategorySlug != "" {
		fields["category"] = q.CategorySlug
	}
	if q.Sort != "" {
		fields["sort"] = string(q.Sort)
	}
	if q.Location.Place != "" {
		fields["place"] = q.Location.Place
	}
	if q.Location.Point != nil {
		fields["lat"] = q.Location.Point.Lat
		fields["lng"] = q.Location.Point.Lng
	}
	if q.Location.Bounds != nil {
		b := q.Location.Bounds
		fields["bounds"] = []float64{b.North, b.South, b.East, b.West}
	}
	if q.Location.RadiusMiles != nil {
		fields["radius"] = *q.Location.RadiusMiles
	}
	if q.Filters.MinRating != nil {
		fields["min_rating"] = *q.Filters.MinRating
	}
	if q.Filters.Verified {
		fields["verified"] = true
	}
	if q.Filters.Featured {
		fields["featured"] = true
	}
	if q.Filters.OpenNow {
		fields["open_now"] = true
	}
	if len(q.Filters.PriceTiers) > 0 {
		tiers := append([]int(nil), q.Filters.PriceTiers...)
		sort.Ints(tiers)
		fields["price_tiers"] = tiers
	}

	// encoding/json writes map keys in sorted order, so the serialization is
	// stable regardless of how the query was assembled.
	payload, err := json.Marshal(fields)
	if err != nil {
		payload = []byte("{}")
	}
	sum := sha256.Sum256(payload)
	return "search:" + hex.EncodeToString(sum[:16])
}
