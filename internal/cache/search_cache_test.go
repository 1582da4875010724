package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
)

func entryWith(ids ...string) Entry {
	businesses := make([]entity.BusinessWithRelations, 0, len(ids))
	for _, id := range ids {
		var b entity.BusinessWithRelations
		b.ID = uuid.MustParse(id)
		businesses = append(businesses, b)
	}
	return Entry{Businesses: businesses, Total: len(businesses)}
}

func TestFingerprint_StructuralEquality(t *testing.T) {
	minRating := 4.0
	a := dto.SearchQuery{
		FreeText:     "coffee",
		CategorySlug: "cafes",
		Sort:         dto.SortRatingDesc,
		Filters:      dto.Filters{MinRating: &minRating, PriceTiers: []int{3, 1, 2}},
	}

	// Same semantic content assembled in a different order, with the tier
	// set shuffled differently.
	minRatingB := 4.0
	b := dto.SearchQuery{
		Sort:         dto.SortRatingDesc,
		Filters:      dto.Filters{PriceTiers: []int{2, 1, 3}, MinRating: &minRatingB},
		CategorySlug: "cafes",
		FreeText:     "coffee",
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected structurally equal queries to share a fingerprint")
	}
}

func TestFingerprint_ExcludesPagination(t *testing.T) {
	a := dto.SearchQuery{FreeText: "pizza", Pagination: dto.Pagination{Limit: 20, Offset: 0}}
	b := dto.SearchQuery{FreeText: "pizza", Pagination: dto.Pagination{Limit: 10, Offset: 40}}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected pages of the same query to share a fingerprint")
	}
}

func TestFingerprint_DistinguishesQueries(t *testing.T) {
	a := dto.SearchQuery{FreeText: "pizza"}
	b := dto.SearchQuery{FreeText: "tacos"}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected different terms to produce different fingerprints")
	}

	c := dto.SearchQuery{FreeText: "pizza", Location: dto.Location{Point: &geo.Point{Lat: 37.77, Lng: -122.41}}}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatal("expected location anchor to change the fingerprint")
	}
}

func TestSearchCache_HitMissAccounting(t *testing.T) {
	c := New(8, time.Minute)

	if _, ok := c.Get("search:absent"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("search:key", entryWith("00000000-0000-0000-0000-000000000001"))
	if _, ok := c.Get("search:key"); !ok {
		t.Fatal("expected hit after set")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestSearchCache_TTLExpiry(t *testing.T) {
	c := New(8, 30*time.Millisecond)
	c.Set("search:key", entryWith("00000000-0000-0000-0000-000000000001"))

	if _, ok := c.Get("search:key"); !ok {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("search:key"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestSearchCache_LastWriteWins(t *testing.T) {
	c := New(8, time.Minute)
	c.Set("search:key", entryWith("00000000-0000-0000-0000-000000000001"))
	c.Set("search:key", entryWith(
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
	))

	entry, ok := c.Get("search:key")
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Total != 2 {
		t.Fatalf("expected the second write to win, got total %d", entry.Total)
	}
}

func TestSearchCache_BoundedByMaxEntries(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("search:a", entryWith())
	c.Set("search:b", entryWith())
	c.Set("search:c", entryWith())

	if c.Len() > 2 {
		t.Fatalf("expected at most 2 entries, got %d", c.Len())
	}
	// Oldest entry evicted first.
	if _, ok := c.Get("search:a"); ok {
		t.Fatal("expected least recently used entry to be evicted")
	}
}

func TestSearchCache_InvalidatePrefix(t *testing.T) {
	c := New(8, time.Minute)
	c.Set("search:a", entryWith())
	c.Set("search:b", entryWith())
	c.Set("trending:a", entryWith())

	if removed := c.Invalidate("search:"); removed != 2 {
		t.Fatalf("expected 2 entries removed, got %d", removed)
	}
	if _, ok := c.Get("trending:a"); !ok {
		t.Fatal("expected entries outside the prefix to survive")
	}

	if removed := c.Invalidate(""); removed != 1 {
		t.Fatalf("expected full purge to remove the remaining entry, got %d", removed)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}
