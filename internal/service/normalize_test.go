package service

import (
	"testing"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/geo"
)

func TestNormalizeQuery_Canonicalization(t *testing.T) {
	q, err := normalizeQuery(dto.SearchQuery{
		FreeText:     "  Coffee Shop  ",
		CategorySlug: " Cafes ",
		Location:     dto.Location{Place: " San Francisco "},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.FreeText != "coffee shop" {
		t.Fatalf("expected lowercased trimmed text, got %q", q.FreeText)
	}
	if q.CategorySlug != "cafes" || q.Location.Place != "san francisco" {
		t.Fatalf("unexpected canonical fields: %+v", q)
	}
	if q.Sort != dto.SortRelevance {
		t.Fatalf("expected default sort, got %q", q.Sort)
	}
	if q.Pagination.Limit != 20 || q.Pagination.Offset != 0 {
		t.Fatalf("unexpected pagination defaults: %+v", q.Pagination)
	}
}

func TestNormalizeQuery_LimitClamping(t *testing.T) {
	cases := map[string]struct {
		in   dto.Pagination
		want dto.Pagination
	}{
		"zero limit defaults": {dto.Pagination{}, dto.Pagination{Limit: 20}},
		"negative limit":      {dto.Pagination{Limit: -3}, dto.Pagination{Limit: 20}},
		"over max":            {dto.Pagination{Limit: 5000}, dto.Pagination{Limit: 100}},
		"negative offset":     {dto.Pagination{Limit: 10, Offset: -1}, dto.Pagination{Limit: 10}},
		"kept as given":       {dto.Pagination{Limit: 50, Offset: 30}, dto.Pagination{Limit: 50, Offset: 30}},
	}
	for name, tc := range cases {
		q, err := normalizeQuery(dto.SearchQuery{FreeText: "x", Pagination: tc.in})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if q.Pagination != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", name, tc.want, q.Pagination)
		}
	}
}

func TestNormalizeQuery_SortsPriceTiers(t *testing.T) {
	q, err := normalizeQuery(dto.SearchQuery{
		FreeText: "x",
		Filters:  dto.Filters{PriceTiers: []int{3, 1, 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if q.Filters.PriceTiers[i] != want {
			t.Fatalf("expected sorted tiers, got %v", q.Filters.PriceTiers)
		}
	}
}

func TestNormalizeQuery_Rejections(t *testing.T) {
	badRadius := -5.0
	badRating := 5.5
	cases := map[string]dto.SearchQuery{
		"unknown sort":    {FreeText: "x", Sort: "bestest"},
		"negative radius": {FreeText: "x", Location: dto.Location{RadiusMiles: &badRadius}},
		"bad point":       {FreeText: "x", Location: dto.Location{Point: &geo.Point{Lat: 91, Lng: 0}}},
		"inverted box":    {FreeText: "x", Location: dto.Location{Bounds: &geo.BoundingBox{North: 37, South: 38, East: -122, West: -123}}},
		"rating too high": {FreeText: "x", Filters: dto.Filters{MinRating: &badRating}},
		"tier too high":   {FreeText: "x", Filters: dto.Filters{PriceTiers: []int{5}}},
	}
	for name, raw := range cases {
		if _, err := normalizeQuery(raw); err == nil {
			t.Fatalf("%s: expected InvalidQueryError", name)
		}
	}
}

func TestLowestRatingThreshold(t *testing.T) {
	if LowestRatingThreshold(nil) != nil {
		t.Fatalf("expected nil for empty thresholds")
	}
	got := LowestRatingThreshold([]float64{4.5, 3, 5})
	if got == nil || *got != 3 {
		t.Fatalf("expected lowest threshold 3, got %v", got)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(415) 555-0132":   "+14155550132",
		"415-555-0132":     "+14155550132",
		"+44 20 7946 0958": "+442079460958",
		"not a number":     "",
		"":                 "",
	}
	for in, want := range cases {
		if got := normalizePhone(in, "US"); got != want {
			t.Fatalf("normalizePhone(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestNormalizeWebsite(t *testing.T) {
	cases := map[string]string{
		"Example.com":              "https://example.com",
		"https://Example.com/menu": "https://example.com/menu",
		"":                         "",
	}
	for in, want := range cases {
		if got := normalizeWebsite(in); got != want {
			t.Fatalf("normalizeWebsite(%q): expected %q, got %q", in, want, got)
		}
	}

	// Unicode hosts come back punycoded.
	if got := normalizeWebsite("münchen-cafe.de"); got != "https://xn--mnchen-cafe-thb.de" {
		t.Fatalf("expected punycoded host, got %q", got)
	}
}
