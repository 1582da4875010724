package service

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
	"github.com/localhubhq/directory-api/internal/service/trending"
)

// RankContext supplies the data some comparators need beyond the businesses
// themselves.
type RankContext struct {
	// Point anchors the distance comparator. When nil, distance mode falls
	// back to relevance order instead of erroring.
	Point *geo.Point
	// RecentReviews feeds the trending score; businesses absent from the map
	// count zero recent reviews.
	RecentReviews map[uuid.UUID]int
}

// Rank orders businesses by the selected mode. Every comparator ends in an
// id tie-break so a fixed input always produces a fixed order, and at most
// one featured business is pinned to position 0 across all modes. Pinning is
// idempotent: ranking an already-ranked slice changes nothing.
func Rank(businesses []entity.BusinessWithRelations, mode dto.SortMode, rctx RankContext) []entity.BusinessWithRelations {
	out := append([]entity.BusinessWithRelations(nil), businesses...)

	switch mode {
	case dto.SortRatingDesc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Rating != out[j].Rating {
				return out[i].Rating > out[j].Rating
			}
			if out[i].ReviewCount != out[j].ReviewCount {
				return out[i].ReviewCount > out[j].ReviewCount
			}
			return idLess(out[i].ID, out[j].ID)
		})
	case dto.SortRatingAsc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Rating != out[j].Rating {
				return out[i].Rating < out[j].Rating
			}
			if out[i].ReviewCount != out[j].ReviewCount {
				return out[i].ReviewCount > out[j].ReviewCount
			}
			return idLess(out[i].ID, out[j].ID)
		})
	case dto.SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].PriceTier != out[j].PriceTier {
				return out[i].PriceTier < out[j].PriceTier
			}
			if out[i].Rating != out[j].Rating {
				return out[i].Rating > out[j].Rating
			}
			return idLess(out[i].ID, out[j].ID)
		})
	case dto.SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].PriceTier != out[j].PriceTier {
				return out[i].PriceTier > out[j].PriceTier
			}
			if out[i].Rating != out[j].Rating {
				return out[i].Rating > out[j].Rating
			}
			return idLess(out[i].ID, out[j].ID)
		})
	case dto.SortDistance:
		if rctx.Point != nil {
			center := *rctx.Point
			dist := make(map[uuid.UUID]float64, len(out))
			for i := range out {
				dist[out[i].ID] = distanceOrFar(center, &out[i].Business)
			}
			sort.SliceStable(out, func(i, j int) bool {
				di, dj := dist[out[i].ID], dist[out[j].ID]
				if di != dj {
					return di < dj
				}
				return idLess(out[i].ID, out[j].ID)
			})
		}
		// No anchor: keep relevance order.
	case dto.SortTrending:
		scores := make(map[uuid.UUID]float64, len(out))
		for i := range out {
			scores[out[i].ID] = trending.Score(out[i].Rating, out[i].Featured, rctx.RecentReviews[out[i].ID])
		}
		sort.SliceStable(out, func(i, j int) bool {
			if scores[out[i].ID] != scores[out[j].ID] {
				return scores[out[i].ID] > scores[out[j].ID]
			}
			return idLess(out[i].ID, out[j].ID)
		})
	case dto.SortNewest:
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return idLess(out[i].ID, out[j].ID)
		})
	default:
		// Relevance: preserve the backend's order.
	}

	return pinFeatured(out)
}

// pinFeatured promotes the first featured business to index 0, leaving the
// rest in their current order. At most one listing moves; a slice whose head
// is already featured comes back unchanged.
func pinFeatured(businesses []entity.BusinessWithRelations) []entity.BusinessWithRelations {
	for i := range businesses {
		if !businesses[i].Featured {
			continue
		}
		if i == 0 {
			return businesses
		}
		pinned := businesses[i]
		copy(businesses[1:i+1], businesses[:i])
		businesses[0] = pinned
		return businesses
	}
	return businesses
}

// distanceOrFar returns the distance to the business, or +inf-like sentinel
// when the listing has no coordinates so it sorts last.
func distanceOrFar(center geo.Point, b *entity.Business) float64 {
	if !b.HasPoint() {
		return 1e18
	}
	d, err := geo.DistanceMiles(center.Lat, center.Lng, *b.Latitude, *b.Longitude)
	if err != nil {
		return 1e18
	}
	return d
}

func idLess(a, b uuid.UUID) bool {
	return strings.Compare(a.String(), b.String()) < 0
}
