package service

import (
	"net/url"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
)

const (
	defaultLimit       = 20
	maxLimit           = 100
	defaultPhoneRegion = "US"
)

var idnaProfile = idna.Lookup

// normalizeQuery canonicalizes a raw query: free text is trimmed and
// lowercased, the limit is clamped to [1, 100] with a default of 20, the
// offset floors at 0, and the sort mode defaults to relevance. Structural
// problems the clamp cannot repair come back as InvalidQueryError.
func normalizeQuery(raw dto.SearchQuery) (dto.SearchQuery, error) {
	q := raw
	q.FreeText = strings.ToLower(strings.TrimSpace(q.FreeText))
	q.CategorySlug = strings.ToLower(strings.TrimSpace(q.CategorySlug))
	q.Location.Place = strings.ToLower(strings.TrimSpace(q.Location.Place))

	if q.Sort == "" {
		q.Sort = dto.SortRelevance
	}
	if !q.Sort.Valid() {
		return dto.SearchQuery{}, InvalidQueryError{Message: "unknown sort mode " + string(q.Sort)}
	}

	if q.Pagination.Limit <= 0 {
		q.Pagination.Limit = defaultLimit
	}
	if q.Pagination.Limit > maxLimit {
		q.Pagination.Limit = maxLimit
	}
	if q.Pagination.Offset < 0 {
		q.Pagination.Offset = 0
	}

	if q.Location.RadiusMiles != nil && *q.Location.RadiusMiles < 0 {
		return dto.SearchQuery{}, InvalidQueryError{Message: "negative search radius"}
	}
	if q.Location.Bounds != nil {
		if err := q.Location.Bounds.Validate(); err != nil {
			return dto.SearchQuery{}, InvalidQueryError{Message: err.Error()}
		}
	}
	if q.Location.Point != nil {
		if err := q.Location.Point.Validate(); err != nil {
			return dto.SearchQuery{}, InvalidQueryError{Message: err.Error()}
		}
	}
	if q.Filters.MinRating != nil && (*q.Filters.MinRating < 0 || *q.Filters.MinRating > 5) {
		return dto.SearchQuery{}, InvalidQueryError{Message: "min rating out of range"}
	}
	if len(q.Filters.PriceTiers) > 0 {
		tiers := append([]int(nil), q.Filters.PriceTiers...)
		sort.Ints(tiers)
		for _, t := range tiers {
			if t < 1 || t > 4 {
				return dto.SearchQuery{}, InvalidQueryError{Message: "price tier out of range"}
			}
		}
		q.Filters.PriceTiers = tiers
	}

	return q, nil
}

// LowestRatingThreshold collapses a multi-checkbox star filter to the
// historical "meets the lowest checked threshold" semantics: checking 3 and
// 4 stars keeps everything rated 3.0 and up.
func LowestRatingThreshold(thresholds []float64) *float64 {
	if len(thresholds) == 0 {
		return nil
	}
	lowest := thresholds[0]
	for _, t := range thresholds[1:] {
		if t < lowest {
			lowest = t
		}
	}
	return &lowest
}

// normalizeContact canonicalizes display fields on a hydrated listing:
// phone numbers to E.164 and website hosts through the IDNA lookup profile
// so unicode domains render consistently. Values that fail to parse are
// left as stored.
func normalizeContact(b *entity.Business) {
	if b.Phone != nil {
		if e164 := normalizePhone(*b.Phone, defaultPhoneRegion); e164 != "" {
			b.Phone = &e164
		}
	}
	if b.Website != nil {
		if site := normalizeWebsite(*b.Website); site != "" {
			b.Website = &site
		}
	}
}

func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return ""
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

func normalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	host, err := idnaProfile.ToASCII(strings.ToLower(parsed.Host))
	if err != nil {
		return ""
	}
	parsed.Host = host
	return parsed.String()
}
