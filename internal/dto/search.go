package dto

import (
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
)

// SortMode selects the comparator used to order search results.
type SortMode string

const (
	SortRelevance  SortMode = "relevance"
	SortRatingDesc SortMode = "rating_desc"
	SortRatingAsc  SortMode = "rating_asc"
	SortPriceAsc   SortMode = "price_asc"
	SortPriceDesc  SortMode = "price_desc"
	SortDistance   SortMode = "distance"
	SortTrending   SortMode = "trending"
	SortNewest     SortMode = "newest"
)

// Valid reports whether the mode is one of the supported comparators.
func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortRatingDesc, SortRatingAsc, SortPriceAsc,
		SortPriceDesc, SortDistance, SortTrending, SortNewest:
		return true
	}
	return false
}

// Filters holds the optional conjunctive predicates of a search.
type Filters struct {
	MinRating  *float64 `json:"min_rating,omitempty"`
	Verified   bool     `json:"verified,omitempty"`
	Featured   bool     `json:"featured,omitempty"`
	OpenNow    bool     `json:"open_now,omitempty"`
	PriceTiers []int    `json:"price_tiers,omitempty"`
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return f.MinRating == nil && !f.Verified && !f.Featured && !f.OpenNow && len(f.PriceTiers) == 0
}

// Location describes where a search is anchored. At most one of Place,
// Point, or Bounds is used; Place is resolved to a Point by the geocoder.
type Location struct {
	Place       string           `json:"place,omitempty"`
	Point       *geo.Point       `json:"point,omitempty"`
	Bounds      *geo.BoundingBox `json:"bounds,omitempty"`
	RadiusMiles *float64         `json:"radius_miles,omitempty"`
}

// Empty reports whether no location anchor is set.
func (l Location) Empty() bool {
	return l.Place == "" && l.Point == nil && l.Bounds == nil
}

// Pagination is the requested result window.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// SearchQuery is a single search request's parameters. The service
// normalizes it before filtering, ranking, and fingerprinting.
type SearchQuery struct {
	FreeText     string     `json:"free_text,omitempty"`
	Location     Location   `json:"location,omitempty"`
	CategorySlug string     `json:"category_slug,omitempty"`
	Filters      Filters    `json:"filters,omitempty"`
	Sort         SortMode   `json:"sort"`
	Pagination   Pagination `json:"pagination"`
}

// Empty reports whether the query carries no criteria at all. Empty queries
// yield the featured default set rather than an error.
func (q SearchQuery) Empty() bool {
	return q.FreeText == "" && q.Location.Empty() && q.CategorySlug == "" && q.Filters.Empty()
}

// Performance reports how a request was served.
type Performance struct {
	QueryTimeMs int64 `json:"query_time_ms"`
	CacheHit    bool  `json:"cache_hit"`
}

// SearchResult is the output envelope for all search operations. Total counts
// matches before pagination, not the page length.
type SearchResult struct {
	Businesses  []entity.BusinessWithRelations `json:"businesses"`
	Total       int                            `json:"total"`
	Performance Performance                    `json:"performance"`
}
