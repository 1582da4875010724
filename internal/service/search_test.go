package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/localhubhq/directory-api/internal/cache"
	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
	"github.com/localhubhq/directory-api/internal/repository"
	"github.com/localhubhq/directory-api/internal/service/trending"
)

type mockBusinessRepository struct {
	search    func(ctx context.Context, term, location, category string, maxResults int) ([]repository.SearchHit, error)
	byIDs     func(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error)
	published func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error)
	featured  func(ctx context.Context, limit int) ([]entity.BusinessWithRelations, error)
	nearby    func(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]repository.NearbyBusiness, error)
	reviews   func(ctx context.Context, since time.Time) (map[uuid.UUID]int, error)
}

func (m *mockBusinessRepository) SearchBusinesses(ctx context.Context, term, location, category string, maxResults int) ([]repository.SearchHit, error) {
	if m.search != nil {
		return m.search(ctx, term, location, category, maxResults)
	}
	return nil, errors.New("search not implemented")
}

func (m *mockBusinessRepository) BusinessesByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
	if m.byIDs != nil {
		return m.byIDs(ctx, ids)
	}
	return nil, errors.New("byIDs not implemented")
}

func (m *mockBusinessRepository) PublishedBusinesses(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
	if m.published != nil {
		return m.published(ctx, filter, limit)
	}
	return nil, errors.New("published not implemented")
}

func (m *mockBusinessRepository) FeaturedBusinesses(ctx context.Context, limit int) ([]entity.BusinessWithRelations, error) {
	if m.featured != nil {
		return m.featured(ctx, limit)
	}
	return nil, errors.New("featured not implemented")
}

func (m *mockBusinessRepository) NearbyBusinesses(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]repository.NearbyBusiness, error) {
	if m.nearby != nil {
		return m.nearby(ctx, lat, lng, radiusKm, limit)
	}
	return nil, errors.New("nearby not implemented")
}

func (m *mockBusinessRepository) RecentReviewCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error) {
	if m.reviews != nil {
		return m.reviews(ctx, since)
	}
	return nil, errors.New("reviews not implemented")
}

func newTestService(repo repository.BusinessRepository, opts ...SearchOption) *BusinessSearchService {
	return NewBusinessSearchService(repo, cache.New(16, time.Minute), opts...)
}

func TestSearch_RatingFilterAndSponsoredPinning(t *testing.T) {
	// The worked scenario: id 3 excluded by the rating filter, the sponsored
	// listing pinned ahead of the better-reviewed one.
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1, rating: 4.9, reviews: 200, tier: 2}),
				makeBusiness(bizSpec{id: 2, rating: 4.9, reviews: 50, tier: 1, featured: true}),
				makeBusiness(bizSpec{id: 3, rating: 3.0, reviews: 10, tier: 4}),
			}, nil
		},
	}
	svc := newTestService(repo)

	minRating := 4.0
	result, err := svc.Search(context.Background(), dto.SearchQuery{
		Filters: dto.Filters{MinRating: &minRating},
		Sort:    dto.SortRatingDesc,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, result.Businesses, 2, 1)
	if result.Total != 2 {
		t.Fatalf("expected total 2, got %d", result.Total)
	}
	if result.Performance.CacheHit {
		t.Fatal("first call must be a cache miss")
	}
}

func TestSearch_Deterministic(t *testing.T) {
	published := func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
		return []entity.BusinessWithRelations{
			makeBusiness(bizSpec{id: 3, rating: 4.0, reviews: 10}),
			makeBusiness(bizSpec{id: 1, rating: 4.0, reviews: 10}),
			makeBusiness(bizSpec{id: 2, rating: 4.0, reviews: 10}),
		}, nil
	}
	query := dto.SearchQuery{CategorySlug: "plumbers", Sort: dto.SortRatingDesc}

	// Two services with isolated caches see the same snapshot.
	first, err := newTestService(&mockBusinessRepository{published: published}).Search(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := newTestService(&mockBusinessRepository{published: published}).Search(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firstIDs, secondIDs := resultIDs(first.Businesses), resultIDs(second.Businesses)
	for i := range firstIDs {
		if firstIDs[i] != secondIDs[i] {
			t.Fatalf("non-deterministic order: %v vs %v", firstIDs, secondIDs)
		}
	}
}

func TestSearch_CacheHitOnSecondCall(t *testing.T) {
	calls := 0
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			calls++
			return []entity.BusinessWithRelations{makeBusiness(bizSpec{id: 1, rating: 4.5})}, nil
		},
	}
	svc := newTestService(repo)
	query := dto.SearchQuery{CategorySlug: "cafes"}

	first, err := svc.Search(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Performance.CacheHit {
		t.Fatal("first call must miss")
	}

	second, err := svc.Search(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Performance.CacheHit {
		t.Fatal("second call must hit the cache")
	}
	if calls != 1 {
		t.Fatalf("expected a single backend fetch, got %d", calls)
	}
	assertIDs(t, second.Businesses, 1)
}

func TestSearch_PaginationStability(t *testing.T) {
	var snapshot []entity.BusinessWithRelations
	for i := 1; i <= 25; i++ {
		snapshot = append(snapshot, makeBusiness(bizSpec{id: i, rating: 4.0, reviews: 100 - i}))
	}
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			return snapshot, nil
		},
	}
	svc := newTestService(repo)

	base := dto.SearchQuery{CategorySlug: "gyms", Sort: dto.SortRatingDesc}

	pageOne := base
	pageOne.Pagination = dto.Pagination{Limit: 10, Offset: 0}
	first, err := svc.Search(context.Background(), pageOne)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pageTwo := base
	pageTwo.Pagination = dto.Pagination{Limit: 10, Offset: 10}
	second, err := svc.Search(context.Background(), pageTwo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Performance.CacheHit {
		t.Fatal("expected the second page to reuse the cached entry")
	}

	seen := map[int]bool{}
	for _, id := range resultIDs(first.Businesses) {
		seen[id] = true
	}
	for _, id := range resultIDs(second.Businesses) {
		if seen[id] {
			t.Fatalf("pages overlap at id %d", id)
		}
	}
	if len(first.Businesses) != 10 || len(second.Businesses) != 10 {
		t.Fatalf("expected 10+10 results, got %d+%d", len(first.Businesses), len(second.Businesses))
	}
	if first.Total != 25 || second.Total != 25 {
		t.Fatalf("expected total 25 on both pages, got %d/%d", first.Total, second.Total)
	}
}

func TestSearch_FreeTextPreservesRelevanceOrder(t *testing.T) {
	repo := &mockBusinessRepository{
		search: func(ctx context.Context, term, location, category string, maxResults int) ([]repository.SearchHit, error) {
			if term != "tacos" {
				t.Fatalf("expected normalized term, got %q", term)
			}
			return []repository.SearchHit{
				{ID: testID(3), Rank: 0.9},
				{ID: testID(1), Rank: 0.7},
				{ID: testID(2), Rank: 0.5},
			}, nil
		},
		byIDs: func(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
			// Hydration returns rows in arbitrary order.
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1, rating: 2.0}),
				makeBusiness(bizSpec{id: 2, rating: 5.0}),
				makeBusiness(bizSpec{id: 3, rating: 3.0}),
			}, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.Search(context.Background(), dto.SearchQuery{FreeText: "  Tacos "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, result.Businesses, 3, 1, 2)
}

func TestSearch_PartialHydrationDropsMissingIDs(t *testing.T) {
	repo := &mockBusinessRepository{
		search: func(ctx context.Context, term, location, category string, maxResults int) ([]repository.SearchHit, error) {
			return []repository.SearchHit{
				{ID: testID(1)}, {ID: testID(2)}, {ID: testID(3)},
			}, nil
		},
		byIDs: func(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
			// id 2 vanished between candidate fetch and hydration.
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1}),
				makeBusiness(bizSpec{id: 3}),
			}, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.Search(context.Background(), dto.SearchQuery{FreeText: "pizza"})
	if err != nil {
		t.Fatalf("expected request to succeed with the reduced set, got %v", err)
	}
	assertIDs(t, result.Businesses, 1, 3)
}

func TestSearch_BackendErrorPropagates(t *testing.T) {
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(repo)

	_, err := svc.Search(context.Background(), dto.SearchQuery{CategorySlug: "cafes"})
	if err == nil {
		t.Fatal("expected error, an empty result must never mean failure")
	}
	var backendErr SearchBackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected SearchBackendError, got %T", err)
	}

	// Failed queries must not poison the cache.
	hits, _ := mustStats(svc)
	if hits != 0 {
		t.Fatalf("expected no cache hits after failure, got %d", hits)
	}
}

func TestSearch_TimeoutMapsToSearchTimeoutError(t *testing.T) {
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			return nil, context.DeadlineExceeded
		},
	}
	svc := newTestService(repo)

	_, err := svc.Search(context.Background(), dto.SearchQuery{CategorySlug: "cafes"})
	var timeoutErr SearchTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected SearchTimeoutError, got %T: %v", err, err)
	}
}

func TestSearch_InvalidSortMode(t *testing.T) {
	svc := newTestService(&mockBusinessRepository{})

	_, err := svc.Search(context.Background(), dto.SearchQuery{FreeText: "x", Sort: "fanciest"})
	var invalid InvalidQueryError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidQueryError, got %T", err)
	}
}

func TestSearch_EmptyQueryReturnsFeaturedDefault(t *testing.T) {
	repo := &mockBusinessRepository{
		featured: func(ctx context.Context, limit int) ([]entity.BusinessWithRelations, error) {
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1, featured: true}),
				makeBusiness(bizSpec{id: 2, featured: true}),
			}, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.Search(context.Background(), dto.SearchQuery{})
	if err != nil {
		t.Fatalf("expected default set, got error %v", err)
	}
	assertIDs(t, result.Businesses, 1, 2)
}

func TestSearch_LimitClamped(t *testing.T) {
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			if limit != 100*overFetchFactor {
				t.Fatalf("expected over-fetch of the clamped limit, got %d", limit)
			}
			return nil, nil
		},
	}
	svc := newTestService(repo)

	if _, err := svc.Search(context.Background(), dto.SearchQuery{
		CategorySlug: "cafes",
		Pagination:   dto.Pagination{Limit: 5000},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearch_GeocoderResolvesPlace(t *testing.T) {
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1, lat: 37.78, lng: -122.42}),
				makeBusiness(bizSpec{id: 2, lat: 38.58, lng: -121.49}),
			}, nil
		},
	}
	svc := newTestService(repo, WithGeocoder(geocoderFunc(func(ctx context.Context, place string) (geo.Point, error) {
		if place != "san francisco, ca" {
			t.Fatalf("expected normalized place string, got %q", place)
		}
		return geo.Point{Lat: 37.7749, Lng: -122.4194}, nil
	})))

	result, err := svc.Search(context.Background(), dto.SearchQuery{
		Location: dto.Location{Place: "San Francisco, CA"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Implicit default radius keeps only the local listing.
	assertIDs(t, result.Businesses, 1)
}

func TestTrending_RestrictsToRecentlyReviewed(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := &mockBusinessRepository{
		reviews: func(ctx context.Context, since time.Time) (map[uuid.UUID]int, error) {
			want := now.Add(-7 * 24 * time.Hour)
			if !since.Equal(want) {
				t.Fatalf("expected window since %v, got %v", want, since)
			}
			return map[uuid.UUID]int{testID(1): 2, testID(2): 30}, nil
		},
		byIDs: func(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 1, rating: 5.0}),
				makeBusiness(bizSpec{id: 2, rating: 3.0}),
			}, nil
		},
	}
	svc := newTestService(repo, WithClock(func() time.Time { return now }))

	result, err := svc.Trending(context.Background(), trending.Timeframe7d, 10, dto.Location{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Velocity dominates the score.
	assertIDs(t, result.Businesses, 2, 1)
}

func TestTrending_InvalidTimeframe(t *testing.T) {
	svc := newTestService(&mockBusinessRepository{})
	_, err := svc.Trending(context.Background(), trending.Timeframe("90d"), 10, dto.Location{})
	var invalid InvalidQueryError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidQueryError, got %T", err)
	}
}

func TestNearby_OrdersByDistanceAndFiltersUnpublished(t *testing.T) {
	repo := &mockBusinessRepository{
		nearby: func(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]repository.NearbyBusiness, error) {
			return []repository.NearbyBusiness{
				{Business: makeBusiness(bizSpec{id: 1}).Business, DistanceKm: 3.4},
				{Business: makeBusiness(bizSpec{id: 2}).Business, DistanceKm: 0.8},
				{Business: makeBusiness(bizSpec{id: 3, status: entity.StatusDraft}).Business, DistanceKm: 0.1},
			}, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.Nearby(context.Background(), geo.Point{Lat: 37.77, Lng: -122.41}, 10, 20, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, result.Businesses, 2, 1)
}

func TestNearby_RejectsBadArguments(t *testing.T) {
	svc := newTestService(&mockBusinessRepository{})

	if _, err := svc.Nearby(context.Background(), geo.Point{Lat: 300, Lng: 0}, 10, 20, ""); err == nil {
		t.Fatal("expected error for invalid point")
	}
	if _, err := svc.Nearby(context.Background(), geo.Point{Lat: 37, Lng: -122}, -1, 20, ""); err == nil {
		t.Fatal("expected error for non-positive radius")
	}
}

func TestByCategory_UsesCategoryScan(t *testing.T) {
	repo := &mockBusinessRepository{
		published: func(ctx context.Context, filter repository.ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
			if filter.CategorySlug != "plumbers" {
				t.Fatalf("expected category filter, got %+v", filter)
			}
			// The scan pre-orders featured desc then rating desc.
			return []entity.BusinessWithRelations{
				makeBusiness(bizSpec{id: 2, rating: 4.1, featured: true}),
				makeBusiness(bizSpec{id: 1, rating: 4.8}),
			}, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.ByCategory(context.Background(), "plumbers", dto.Location{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, result.Businesses, 2, 1)
}

// geocoderFunc adapts a function to the Geocoder interface.
type geocoderFunc func(ctx context.Context, place string) (geo.Point, error)

func (f geocoderFunc) Resolve(ctx context.Context, place string) (geo.Point, error) {
	return f(ctx, place)
}

func mustStats(s *BusinessSearchService) (hits, misses uint64) {
	return s.cache.Stats()
}
