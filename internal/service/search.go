package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/localhubhq/directory-api/internal/cache"
	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
	"github.com/localhubhq/directory-api/internal/repository"
	"github.com/localhubhq/directory-api/internal/service/trending"
)

const (
	// DefaultRadiusMiles applies when a place string or bare point arrives
	// without an explicit radius. Promoted from the historical hard-coded 35.
	DefaultRadiusMiles = 35.0

	// DefaultBackendTimeout bounds each backend call.
	DefaultBackendTimeout = 4 * time.Second

	// overFetchFactor leaves room for post-filtering: the candidate fetch
	// asks for this multiple of the page limit. An implementation choice,
	// not a contract.
	overFetchFactor = 5
)

// Geocoder resolves a free-text place string to a coordinate pair.
type Geocoder interface {
	Resolve(ctx context.Context, place string) (geo.Point, error)
}

// BusinessSearchService orchestrates search: it normalizes parameters,
// consults the injected cache, fetches candidates, runs the filter pipeline
// and ranking, paginates, and records telemetry. It holds no per-request
// state; the cache is the only shared mutable collaborator.
type BusinessSearchService struct {
	repo     repository.BusinessRepository
	cache    *cache.SearchCache
	geocoder Geocoder
	log      *logrus.Logger
	pipeline *FilterPipeline

	defaultRadiusMiles float64
	timeout            time.Duration
	now                func() time.Time
}

// SearchOption configures optional collaborators.
type SearchOption func(*BusinessSearchService)

// WithGeocoder supplies the place-string resolver.
func WithGeocoder(g Geocoder) SearchOption {
	return func(s *BusinessSearchService) { s.geocoder = g }
}

// WithLogger overrides the telemetry logger.
func WithLogger(log *logrus.Logger) SearchOption {
	return func(s *BusinessSearchService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDefaultRadius overrides the implicit radius in miles.
func WithDefaultRadius(miles float64) SearchOption {
	return func(s *BusinessSearchService) {
		if miles > 0 {
			s.defaultRadiusMiles = miles
		}
	}
}

// WithBackendTimeout overrides the per-call backend timeout.
func WithBackendTimeout(d time.Duration) SearchOption {
	return func(s *BusinessSearchService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock fixes the clock, for tests exercising open-now and trending
// windows.
func WithClock(now func() time.Time) SearchOption {
	return func(s *BusinessSearchService) {
		if now != nil {
			s.now = now
			s.pipeline = NewFilterPipelineAt(now)
		}
	}
}

// NewBusinessSearchService wires the search orchestrator. The cache is
// injected rather than ambient so tests get isolated instances and
// production chooses the bound.
func NewBusinessSearchService(repo repository.BusinessRepository, searchCache *cache.SearchCache, opts ...SearchOption) *BusinessSearchService {
	s := &BusinessSearchService{
		repo:               repo,
		cache:              searchCache,
		log:                logrus.StandardLogger(),
		pipeline:           NewFilterPipeline(),
		defaultRadiusMiles: DefaultRadiusMiles,
		timeout:            DefaultBackendTimeout,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one ranked search. Cache hits return immediately with the page
// sliced out of the stored unpaginated list; misses fetch, filter, rank,
// cache, and paginate. Failed queries are never cached, and an empty result
// always means zero matches, never a swallowed failure.
func (s *BusinessSearchService) Search(ctx context.Context, raw dto.SearchQuery) (dto.SearchResult, error) {
	started := s.now()

	q, err := normalizeQuery(raw)
	if err != nil {
		s.emitError("invalid_query")
		return dto.SearchResult{}, err
	}

	if q.Empty() {
		return s.featuredDefault(ctx, q, started)
	}

	key := cache.Fingerprint(q)
	if entry, ok := s.cache.Get(key); ok {
		s.log.WithFields(logrus.Fields{"event": "cache_hit", "key": key}).Debug("search cache hit")
		return s.page(entry, q.Pagination, started, true), nil
	}
	s.log.WithFields(logrus.Fields{"event": "cache_miss", "key": key}).Debug("search cache miss")

	anchor, err := s.resolveLocation(ctx, q.Location)
	if err != nil {
		return dto.SearchResult{}, err
	}

	candidates, textApplied, err := s.fetchCandidates(ctx, q, anchor)
	if err != nil {
		return dto.SearchResult{}, err
	}

	filtered, err := s.pipeline.Apply(candidates, q, FilterContext{
		Point:       anchor.point,
		RadiusMiles: anchor.radiusMiles,
		Bounds:      anchor.bounds,
		TextApplied: textApplied,
	})
	if err != nil {
		s.emitError("invalid_query")
		return dto.SearchResult{}, err
	}

	rctx := RankContext{Point: anchor.point}
	if q.Sort == dto.SortTrending {
		counts, err := s.recentReviewCounts(ctx, trending.Timeframe7d)
		if err != nil {
			return dto.SearchResult{}, err
		}
		rctx.RecentReviews = counts
	}
	ranked := Rank(filtered, q.Sort, rctx)

	entry := cache.Entry{Businesses: ranked, Total: len(ranked)}
	s.cache.Set(key, entry)

	result := s.page(entry, q.Pagination, started, false)
	s.log.WithFields(logrus.Fields{
		"event":         "query_completed",
		"query_time_ms": result.Performance.QueryTimeMs,
		"total":         result.Total,
		"sort":          string(q.Sort),
	}).Info("search completed")
	return result, nil
}

// Nearby returns published businesses within radiusKm of the point, closest
// first, optionally narrowed to a category. Distance computation is
// delegated to the backend nearby function; its ordering matches in-process
// haversine ordering.
func (s *BusinessSearchService) Nearby(ctx context.Context, point geo.Point, radiusKm float64, limit int, categorySlug string) (dto.SearchResult, error) {
	started := s.now()

	if err := point.Validate(); err != nil {
		s.emitError("invalid_query")
		return dto.SearchResult{}, InvalidQueryError{Message: err.Error()}
	}
	if radiusKm <= 0 {
		s.emitError("invalid_query")
		return dto.SearchResult{}, InvalidQueryError{Message: "radius must be positive"}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	nearby, err := s.repo.NearbyBusinesses(callCtx, point.Lat, point.Lng, radiusKm, limit*overFetchFactor)
	if err != nil {
		return dto.SearchResult{}, s.backendErr("nearby", err)
	}

	businesses := make([]entity.BusinessWithRelations, 0, len(nearby))
	distances := make(map[uuid.UUID]float64, len(nearby))
	for _, nb := range nearby {
		if nb.Status != entity.StatusPublished {
			continue
		}
		distances[nb.ID] = nb.DistanceKm
		businesses = append(businesses, entity.BusinessWithRelations{Business: nb.Business})
	}

	if categorySlug != "" {
		businesses, err = s.filterByCategory(ctx, businesses, categorySlug)
		if err != nil {
			return dto.SearchResult{}, err
		}
	}

	sort.SliceStable(businesses, func(i, j int) bool {
		di, dj := distances[businesses[i].ID], distances[businesses[j].ID]
		if di != dj {
			return di < dj
		}
		return idLess(businesses[i].ID, businesses[j].ID)
	})
	if len(businesses) > limit {
		businesses = businesses[:limit]
	}
	for i := range businesses {
		normalizeContact(&businesses[i].Business)
	}

	result := dto.SearchResult{
		Businesses:  businesses,
		Total:       len(businesses),
		Performance: s.performance(started, false),
	}
	s.log.WithFields(logrus.Fields{
		"event":         "query_completed",
		"query_time_ms": result.Performance.QueryTimeMs,
		"total":         result.Total,
		"op":            "nearby",
	}).Info("nearby completed")
	return result, nil
}

// ByCategory lists a category's businesses with an optional location filter,
// using the default directory rank: featured first, then rating. It shares
// the search path (and therefore the cache) with a category-only query.
func (s *BusinessSearchService) ByCategory(ctx context.Context, slug string, location dto.Location, limit, offset int) (dto.SearchResult, error) {
	if slug == "" {
		s.emitError("invalid_query")
		return dto.SearchResult{}, InvalidQueryError{Message: "category slug is required"}
	}
	// The published scan pre-orders featured desc then rating desc, and
	// relevance mode preserves that order.
	return s.Search(ctx, dto.SearchQuery{
		CategorySlug: slug,
		Location:     location,
		Sort:         dto.SortRelevance,
		Pagination:   dto.Pagination{Limit: limit, Offset: offset},
	})
}

// Trending returns listings with at least one review inside the timeframe,
// ranked by trending score, optionally location-narrowed.
func (s *BusinessSearchService) Trending(ctx context.Context, timeframe trending.Timeframe, limit int, location dto.Location) (dto.SearchResult, error) {
	started := s.now()

	if !timeframe.Valid() {
		s.emitError("invalid_query")
		return dto.SearchResult{}, InvalidQueryError{Message: "timeframe must be one of 24h, 7d, 30d"}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	counts, err := s.recentReviewCounts(ctx, timeframe)
	if err != nil {
		return dto.SearchResult{}, err
	}
	if len(counts) == 0 {
		return dto.SearchResult{Businesses: []entity.BusinessWithRelations{}, Performance: s.performance(started, false)}, nil
	}

	ids := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	candidates, err := s.hydrate(ctx, ids)
	if err != nil {
		return dto.SearchResult{}, err
	}

	anchor, err := s.resolveLocation(ctx, location)
	if err != nil {
		return dto.SearchResult{}, err
	}
	filtered, err := s.pipeline.Apply(candidates, dto.SearchQuery{}, FilterContext{
		Point:       anchor.point,
		RadiusMiles: anchor.radiusMiles,
		Bounds:      anchor.bounds,
	})
	if err != nil {
		return dto.SearchResult{}, err
	}

	ranked := Rank(filtered, dto.SortTrending, RankContext{RecentReviews: counts})
	total := len(ranked)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := dto.SearchResult{
		Businesses:  ranked,
		Total:       total,
		Performance: s.performance(started, false),
	}
	s.log.WithFields(logrus.Fields{
		"event":         "query_completed",
		"query_time_ms": result.Performance.QueryTimeMs,
		"total":         result.Total,
		"op":            "trending",
		"timeframe":     string(timeframe),
	}).Info("trending completed")
	return result, nil
}

// resolvedLocation is the geographic anchor after place-string resolution.
type resolvedLocation struct {
	point       *geo.Point
	radiusMiles float64
	bounds      *geo.BoundingBox
}

func (s *BusinessSearchService) resolveLocation(ctx context.Context, loc dto.Location) (resolvedLocation, error) {
	var anchor resolvedLocation

	switch {
	case loc.Bounds != nil:
		anchor.bounds = loc.Bounds
	case loc.Point != nil:
		anchor.point = loc.Point
	case loc.Place != "":
		if s.geocoder == nil {
			// Without a geocoder the place string cannot narrow the set;
			// matching proceeds without a geographic anchor.
			s.log.WithField("place", loc.Place).Warn("no geocoder configured, skipping place resolution")
			return anchor, nil
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		point, err := s.geocoder.Resolve(callCtx, loc.Place)
		if err != nil {
			return anchor, s.backendErr("geocode", err)
		}
		anchor.point = &point
	default:
		return anchor, nil
	}

	if anchor.point != nil {
		anchor.radiusMiles = s.defaultRadiusMiles
		if loc.RadiusMiles != nil {
			anchor.radiusMiles = *loc.RadiusMiles
		}
	}
	return anchor, nil
}

// fetchCandidates returns the candidate set and whether free-text matching
// already happened server-side.
func (s *BusinessSearchService) fetchCandidates(ctx context.Context, q dto.SearchQuery, anchor resolvedLocation) ([]entity.BusinessWithRelations, bool, error) {
	fetchLimit := q.Pagination.Limit * overFetchFactor

	if q.FreeText != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		hits, err := s.repo.SearchBusinesses(callCtx, q.FreeText, q.Location.Place, q.CategorySlug, fetchLimit)
		if err != nil {
			return nil, false, s.backendErr("full_text_search", err)
		}
		ids := make([]uuid.UUID, 0, len(hits))
		for _, hit := range hits {
			ids = append(ids, hit.ID)
		}
		businesses, err := s.hydrate(ctx, ids)
		if err != nil {
			return nil, false, err
		}
		return orderByIDs(businesses, ids), true, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	businesses, err := s.repo.PublishedBusinesses(callCtx, repository.ScanFilter{
		CategorySlug: q.CategorySlug,
		MinRating:    q.Filters.MinRating,
		Bounds:       anchor.bounds,
	}, fetchLimit)
	if err != nil {
		return nil, false, s.backendErr("published_scan", err)
	}
	for i := range businesses {
		normalizeContact(&businesses[i].Business)
	}
	return businesses, false, nil
}

// hydrate fetches full records for the ids in one batched call. Ids that no
// longer resolve (a listing deleted mid-flight) are dropped and logged, not
// failed.
func (s *BusinessSearchService) hydrate(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	businesses, err := s.repo.BusinessesByIDs(callCtx, ids)
	if err != nil {
		return nil, s.backendErr("hydrate", err)
	}
	if missing := len(ids) - len(businesses); missing > 0 {
		s.log.WithFields(logrus.Fields{
			"event":   "partial_hydration",
			"missing": missing,
		}).Warn("some candidate ids failed to hydrate")
	}
	for i := range businesses {
		normalizeContact(&businesses[i].Business)
	}
	return businesses, nil
}

func (s *BusinessSearchService) recentReviewCounts(ctx context.Context, timeframe trending.Timeframe) (map[uuid.UUID]int, error) {
	since := s.now().Add(-time.Duration(timeframe.Hours()) * time.Hour)
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	counts, err := s.repo.RecentReviewCounts(callCtx, since)
	if err != nil {
		return nil, s.backendErr("recent_reviews", err)
	}
	return counts, nil
}

// featuredDefault serves completely empty queries with the featured set.
func (s *BusinessSearchService) featuredDefault(ctx context.Context, q dto.SearchQuery, started time.Time) (dto.SearchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	businesses, err := s.repo.FeaturedBusinesses(callCtx, q.Pagination.Limit)
	if err != nil {
		return dto.SearchResult{}, s.backendErr("featured_default", err)
	}
	for i := range businesses {
		normalizeContact(&businesses[i].Business)
	}
	if businesses == nil {
		businesses = []entity.BusinessWithRelations{}
	}
	return dto.SearchResult{
		Businesses:  businesses,
		Total:       len(businesses),
		Performance: s.performance(started, false),
	}, nil
}

// filterByCategory narrows nearby results to a category by hydrating their
// relations in one batch.
func (s *BusinessSearchService) filterByCategory(ctx context.Context, businesses []entity.BusinessWithRelations, slug string) ([]entity.BusinessWithRelations, error) {
	ids := make([]uuid.UUID, 0, len(businesses))
	for i := range businesses {
		ids = append(ids, businesses[i].ID)
	}
	hydrated, err := s.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	matched := make([]entity.BusinessWithRelations, 0, len(hydrated))
	for _, b := range hydrated {
		for _, c := range b.Categories {
			if c.Slug == slug {
				matched = append(matched, b)
				break
			}
		}
	}
	return orderByIDs(matched, ids), nil
}

func (s *BusinessSearchService) page(entry cache.Entry, p dto.Pagination, started time.Time, cacheHit bool) dto.SearchResult {
	start := p.Offset
	if start > len(entry.Businesses) {
		start = len(entry.Businesses)
	}
	end := start + p.Limit
	if end > len(entry.Businesses) {
		end = len(entry.Businesses)
	}
	pageSlice := append([]entity.BusinessWithRelations(nil), entry.Businesses[start:end]...)
	return dto.SearchResult{
		Businesses:  pageSlice,
		Total:       entry.Total,
		Performance: s.performance(started, cacheHit),
	}
}

func (s *BusinessSearchService) performance(started time.Time, cacheHit bool) dto.Performance {
	return dto.Performance{
		QueryTimeMs: s.now().Sub(started).Milliseconds(),
		CacheHit:    cacheHit,
	}
}

func (s *BusinessSearchService) backendErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.emitError("timeout")
		return SearchTimeoutError{Op: op}
	}
	s.emitError("backend")
	return SearchBackendError{Op: op, Err: err}
}

func (s *BusinessSearchService) emitError(kind string) {
	s.log.WithFields(logrus.Fields{"event": "search_error", "kind": kind}).Warn("search error")
}

// orderByIDs reorders businesses to the id order given, dropping ids with no
// match. Used to preserve backend relevance order after a batched hydrate.
func orderByIDs(businesses []entity.BusinessWithRelations, ids []uuid.UUID) []entity.BusinessWithRelations {
	index := make(map[uuid.UUID]int, len(businesses))
	for i := range businesses {
		index[businesses[i].ID] = i
	}
	out := make([]entity.BusinessWithRelations, 0, len(businesses))
	for _, id := range ids {
		if i, ok := index[id]; ok {
			out = append(out, businesses[i])
		}
	}
	return out
}
