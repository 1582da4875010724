package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
)

// FilterContext carries the resolved geographic anchor and the fetch-path
// flags the pipeline needs beyond the query itself.
type FilterContext struct {
	// Point is the resolved search anchor, nil when the query has none.
	Point *geo.Point
	// RadiusMiles applies when Point is set.
	RadiusMiles float64
	// Bounds applies instead of Point+RadiusMiles when the query carried an
	// explicit bounding box.
	Bounds *geo.BoundingBox
	// TextApplied is true when the backend full-text search already matched
	// the term; the in-process substring fallback then becomes a no-op.
	TextApplied bool
}

// FilterPipeline applies the conjunctive search predicates to a candidate
// set. Steps run in a fixed order; order affects only how fast the set
// shrinks, never which businesses survive. The clock is injectable so the
// open-now predicate is testable.
type FilterPipeline struct {
	now func() time.Time
}

// NewFilterPipeline builds a pipeline using the wall clock.
func NewFilterPipeline() *FilterPipeline {
	return &FilterPipeline{now: time.Now}
}

// NewFilterPipelineAt builds a pipeline with a fixed clock for tests.
func NewFilterPipelineAt(now func() time.Time) *FilterPipeline {
	if now == nil {
		now = time.Now
	}
	return &FilterPipeline{now: now}
}

// Apply narrows businesses to those satisfying every active predicate of the
// query. Empty criteria pass everything through; malformed criteria return
// InvalidQueryError rather than being silently ignored.
//
// Order: status, rating, verified, featured, open-now, price tier, free-text
// fallback, geography.
func (p *FilterPipeline) Apply(businesses []entity.BusinessWithRelations, q dto.SearchQuery, fc FilterContext) ([]entity.BusinessWithRelations, error) {
	if fc.Bounds != nil {
		if err := fc.Bounds.Validate(); err != nil {
			return nil, InvalidQueryError{Message: fmt.Sprintf("invalid bounding box: %v", err)}
		}
	}
	if fc.Point != nil {
		if err := fc.Point.Validate(); err != nil {
			return nil, InvalidQueryError{Message: fmt.Sprintf("invalid search point: %v", err)}
		}
		if fc.RadiusMiles < 0 {
			return nil, InvalidQueryError{Message: fmt.Sprintf("negative radius %v", fc.RadiusMiles)}
		}
	}
	if q.Filters.MinRating != nil && (*q.Filters.MinRating < 0 || *q.Filters.MinRating > 5) {
		return nil, InvalidQueryError{Message: fmt.Sprintf("min rating %v out of range", *q.Filters.MinRating)}
	}
	for _, tier := range q.Filters.PriceTiers {
		if tier < 1 || tier > 4 {
			return nil, InvalidQueryError{Message: fmt.Sprintf("price tier %d out of range", tier)}
		}
	}

	out := businesses

	// Only published listings ever participate. Non-optional and not
	// client-configurable.
	out = keep(out, func(b *entity.BusinessWithRelations) bool {
		return b.Status == entity.StatusPublished
	})

	// "At least N stars": the lowest checked threshold bounds the set from
	// below, so a 4-star checkbox keeps 4.0 and up.
	if q.Filters.MinRating != nil {
		minRating := *q.Filters.MinRating
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			return b.Rating >= minRating
		})
	}

	if q.Filters.Verified {
		out = keep(out, func(b *entity.BusinessWithRelations) bool { return b.Verified })
	}
	if q.Filters.Featured {
		out = keep(out, func(b *entity.BusinessWithRelations) bool { return b.Featured })
	}

	// Missing hours means closed.
	if q.Filters.OpenNow {
		now := p.now()
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			return b.Hours.OpenAt(now)
		})
	}

	if len(q.Filters.PriceTiers) > 0 {
		tiers := map[int]bool{}
		for _, t := range q.Filters.PriceTiers {
			tiers[t] = true
		}
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			return tiers[b.PriceTier]
		})
	}

	// Fallback substring match for the no-backend path only; the primary
	// path already matched the term in the full-text function.
	if q.FreeText != "" && !fc.TextApplied {
		needle := normalizeText(q.FreeText)
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			if strings.Contains(normalizeText(b.Name), needle) {
				return true
			}
			return b.Description != nil && strings.Contains(normalizeText(*b.Description), needle)
		})
	}

	var geoErr error
	switch {
	case fc.Bounds != nil:
		bounds := fc.Bounds
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			return b.HasPoint() && bounds.Contains(*b.Latitude, *b.Longitude)
		})
	case fc.Point != nil:
		center := *fc.Point
		radius := fc.RadiusMiles
		out = keep(out, func(b *entity.BusinessWithRelations) bool {
			if !b.HasPoint() {
				return false
			}
			point := geo.Point{Lat: *b.Latitude, Lng: *b.Longitude}
			within, err := geo.WithinRadius(center, point, radius)
			if err != nil {
				geoErr = err
				return false
			}
			if within {
				return true
			}
			// Service-area listings also match when the search point falls
			// inside the circle they cover.
			if b.ServiceAreaRadius != nil && *b.ServiceAreaRadius > 0 {
				covered, err := geo.WithinRadius(point, center, *b.ServiceAreaRadius)
				if err != nil {
					geoErr = err
					return false
				}
				return covered
			}
			return false
		})
	}
	if geoErr != nil {
		return nil, InvalidQueryError{Message: fmt.Sprintf("geographic filter: %v", geoErr)}
	}

	return out, nil
}

func keep(in []entity.BusinessWithRelations, pred func(*entity.BusinessWithRelations) bool) []entity.BusinessWithRelations {
	out := in[:0:0]
	for i := range in {
		if pred(&in[i]) {
			out = append(out, in[i])
		}
	}
	return out
}

// normalizeText lowercases and strips punctuation so substring matching sees
// "Joe's Pizza" and "joes pizza" the same way.
func normalizeText(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
