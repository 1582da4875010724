// Package trending derives a composite activity score used by the trending
// sort mode. The formula is a deliberately simple weighted sum, a tunable
// heuristic rather than a fitted model; retune the weights here without
// touching call sites.
package trending

// Weights of the composite score. Recent review velocity dominates, rating
// contributes, and featured listings get a fixed boost factor.
const (
	WeightRecentReviews = 0.6
	WeightRating        = 0.3
	WeightBoost         = 0.1

	featuredBoost = 2.0
	standardBoost = 1.0
)

// Timeframe is the review window a trending query looks back over.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
)

// Valid reports whether the timeframe is one of the supported windows.
func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe24h, Timeframe7d, Timeframe30d:
		return true
	}
	return false
}

// Hours returns the window length in hours.
func (t Timeframe) Hours() int {
	switch t {
	case Timeframe24h:
		return 24
	case Timeframe7d:
		return 7 * 24
	case Timeframe30d:
		return 30 * 24
	default:
		return 7 * 24
	}
}

// Score computes the trending score for a listing. It is monotonic in
// recentReviews: more recent reviews never lowers the score.
func Score(rating float64, featured bool, recentReviews int) float64 {
	boost := standardBoost
	if featured {
		boost = featuredBoost
	}
	return float64(recentReviews)*WeightRecentReviews + rating*WeightRating + boost*WeightBoost
}
