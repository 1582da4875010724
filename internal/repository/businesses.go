package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localhubhq/directory-api/internal/entity"
	"github.com/localhubhq/directory-api/internal/geo"
)

// pgxPool is the subset of pgxpool.Pool the repository needs, abstracted so
// tests can substitute stub rows.
type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SearchHit is one row of the full-text search function, already in
// relevance order.
type SearchHit struct {
	ID   uuid.UUID
	Rank float64
}

// NearbyBusiness couples a listing with the backend-computed distance.
type NearbyBusiness struct {
	entity.Business
	DistanceKm float64
}

// ScanFilter narrows the published-business scan used when no free-text term
// is present. Empty fields are skipped.
type ScanFilter struct {
	CategorySlug string
	MinRating    *float64
	Bounds       *geo.BoundingBox
}

// BusinessRepository describes the read operations the search core performs
// against the business store.
type BusinessRepository interface {
	SearchBusinesses(ctx context.Context, term, location, category string, maxResults int) ([]SearchHit, error)
	BusinessesByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error)
	PublishedBusinesses(ctx context.Context, filter ScanFilter, limit int) ([]entity.BusinessWithRelations, error)
	FeaturedBusinesses(ctx context.Context, limit int) ([]entity.BusinessWithRelations, error)
	NearbyBusinesses(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyBusiness, error)
	RecentReviewCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error)
}

// PGXBusinessRepository implements BusinessRepository using pgx.
type PGXBusinessRepository struct {
	pool pgxPool
}

// NewPGXBusinessRepository wires a pgx backed repository.
func NewPGXBusinessRepository(pool *pgxpool.Pool) *PGXBusinessRepository {
	return &PGXBusinessRepository{pool: pool}
}

var _ pgxPool = (*pgxpool.Pool)(nil)
var _ BusinessRepository = (*PGXBusinessRepository)(nil)

const businessColumns = `
            id,
            name,
            description,
            status,
            phone,
            website,
            address,
            city,
            state,
            zip,
            CASE WHEN location IS NOT NULL THEN ST_Y(location::geometry) END AS latitude,
            CASE WHEN location IS NOT NULL THEN ST_X(location::geometry) END AS longitude,
            rating,
            review_count,
            price_tier,
            hours,
            verified,
            featured,
            service_area_radius,
            created_at,
            updated_at
`

// SearchBusinesses invokes the full-text search function and returns ids in
// relevance order. Text-relevance scoring lives entirely in the database.
func (r *PGXBusinessRepository) SearchBusinesses(ctx context.Context, term, location, category string, maxResults int) ([]SearchHit, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, relevance_rank FROM search_businesses($1, $2, $3, $4)`,
		term, nullableString(location), nullableString(category), maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("search businesses: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.ID, &hit.Rank); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search businesses rows: %w", err)
	}
	return hits, nil
}

// BusinessesByIDs hydrates candidate ids into full records in one batched
// fetch per relation. Ids with no matching row are simply absent from the
// result; the caller decides how to treat the gap.
func (r *PGXBusinessRepository) BusinessesByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.BusinessWithRelations, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch businesses by ids: %w", err)
	}
	businesses, err := scanBusinesses(rows)
	if err != nil {
		return nil, err
	}
	if len(businesses) == 0 {
		return nil, nil
	}

	present := make([]uuid.UUID, 0, len(businesses))
	for i := range businesses {
		present = append(present, businesses[i].ID)
	}
	if err := r.attachRelations(ctx, businesses, present); err != nil {
		return nil, err
	}
	return businesses, nil
}

// PublishedBusinesses scans the published set with optional narrowing, used
// on the no-free-text path. Results are pre-ordered featured-then-rating so
// an over-fetch bound still surfaces the strongest candidates.
func (r *PGXBusinessRepository) PublishedBusinesses(ctx context.Context, filter ScanFilter, limit int) ([]entity.BusinessWithRelations, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + businessColumns + ` FROM businesses b`)

	var (
		clauses = []string{"b.status = 'published'"}
		args    []any
		idx     = 1
	)

	if filter.CategorySlug != "" {
		query.WriteString(`
            JOIN business_categories bc ON bc.business_id = b.id
            JOIN categories c ON c.id = bc.category_id`)
		clauses = append(clauses, fmt.Sprintf("c.slug = $%d", idx))
		args = append(args, filter.CategorySlug)
		idx++
	}
	if filter.MinRating != nil {
		clauses = append(clauses, fmt.Sprintf("b.rating >= $%d", idx))
		args = append(args, *filter.MinRating)
		idx++
	}
	if filter.Bounds != nil {
		clauses = append(clauses, fmt.Sprintf(
			"ST_Y(b.location::geometry) BETWEEN $%d AND $%d AND ST_X(b.location::geometry) BETWEEN $%d AND $%d",
			idx, idx+1, idx+2, idx+3))
		args = append(args, filter.Bounds.South, filter.Bounds.North, filter.Bounds.West, filter.Bounds.East)
		idx += 4
	}

	query.WriteString(" WHERE ")
	query.WriteString(strings.Join(clauses, " AND "))
	query.WriteString(" ORDER BY b.featured DESC, b.rating DESC, b.review_count DESC, b.id ASC")
	if limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", idx))
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("scan published businesses: %w", err)
	}
	businesses, err := scanBusinesses(rows)
	if err != nil {
		return nil, err
	}
	if len(businesses) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(businesses))
	for i := range businesses {
		ids = append(ids, businesses[i].ID)
	}
	if err := r.attachRelations(ctx, businesses, ids); err != nil {
		return nil, err
	}
	return businesses, nil
}

// FeaturedBusinesses returns the default set served for empty queries.
func (r *PGXBusinessRepository) FeaturedBusinesses(ctx context.Context, limit int) ([]entity.BusinessWithRelations, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+businessColumns+` FROM businesses b
         WHERE b.status = 'published' AND b.featured = TRUE
         ORDER BY b.rating DESC, b.review_count DESC, b.id ASC
         LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch featured businesses: %w", err)
	}
	businesses, err := scanBusinesses(rows)
	if err != nil {
		return nil, err
	}
	if len(businesses) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(businesses))
	for i := range businesses {
		ids = append(ids, businesses[i].ID)
	}
	if err := r.attachRelations(ctx, businesses, ids); err != nil {
		return nil, err
	}
	return businesses, nil
}

// NearbyBusinesses delegates radius search and distance computation to the
// get_nearby_businesses function. The ordering must match in-process
// haversine ordering; the function sorts by its own distance column.
func (r *PGXBusinessRepository) NearbyBusinesses(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyBusiness, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+businessColumns+`, distance_km FROM get_nearby_businesses($1, $2, $3, $4)`,
		lat, lng, radiusKm, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby businesses: %w", err)
	}
	defer rows.Close()

	var result []NearbyBusiness
	for rows.Next() {
		var (
			nb        NearbyBusiness
			scratch   businessScanTargets
			distance  float64
			destSlice = scratch.targets(&nb.Business)
		)
		destSlice = append(destSlice, &distance)
		if err := rows.Scan(destSlice...); err != nil {
			return nil, fmt.Errorf("scan nearby business: %w", err)
		}
		scratch.assign(&nb.Business)
		nb.DistanceKm = distance
		result = append(result, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearby businesses rows: %w", err)
	}
	return result, nil
}

// RecentReviewCounts returns per-business review counts since the given
// instant, feeding the trending score.
func (r *PGXBusinessRepository) RecentReviewCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT business_id, COUNT(*) FROM reviews WHERE created_at >= $1 GROUP BY business_id`, since)
	if err != nil {
		return nil, fmt.Errorf("recent review counts: %w", err)
	}
	defer rows.Close()

	counts := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			id    uuid.UUID
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan review count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent review counts rows: %w", err)
	}
	return counts, nil
}

// attachRelations loads categories, reviews, and photos for the given ids in
// one query per relation.
func (r *PGXBusinessRepository) attachRelations(ctx context.Context, businesses []entity.BusinessWithRelations, ids []uuid.UUID) error {
	index := make(map[uuid.UUID]*entity.BusinessWithRelations, len(businesses))
	for i := range businesses {
		index[businesses[i].ID] = &businesses[i]
	}

	catRows, err := r.pool.Query(ctx,
		`SELECT bc.business_id, c.id, c.slug, c.name
         FROM business_categories bc
         JOIN categories c ON c.id = bc.category_id
         WHERE bc.business_id = ANY($1)
         ORDER BY bc.position ASC`, ids)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	for catRows.Next() {
		var (
			businessID uuid.UUID
			cat        entity.Category
		)
		if err := catRows.Scan(&businessID, &cat.ID, &cat.Slug, &cat.Name); err != nil {
			catRows.Close()
			return fmt.Errorf("scan category: %w", err)
		}
		if b, ok := index[businessID]; ok {
			b.Categories = append(b.Categories, cat)
		}
	}
	if err := catRows.Err(); err != nil {
		catRows.Close()
		return fmt.Errorf("categories rows: %w", err)
	}
	catRows.Close()

	reviewRows, err := r.pool.Query(ctx,
		`SELECT id, business_id, rating, text, created_at
         FROM reviews
         WHERE business_id = ANY($1)
         ORDER BY created_at DESC`, ids)
	if err != nil {
		return fmt.Errorf("fetch reviews: %w", err)
	}
	for reviewRows.Next() {
		var (
			review entity.Review
			text   sql.NullString
		)
		if err := reviewRows.Scan(&review.ID, &review.BusinessID, &review.Rating, &text, &review.CreatedAt); err != nil {
			reviewRows.Close()
			return fmt.Errorf("scan review: %w", err)
		}
		if text.Valid {
			review.Text = &text.String
		}
		if b, ok := index[review.BusinessID]; ok {
			b.Reviews = append(b.Reviews, review)
		}
	}
	if err := reviewRows.Err(); err != nil {
		reviewRows.Close()
		return fmt.Errorf("reviews rows: %w", err)
	}
	reviewRows.Close()

	photoRows, err := r.pool.Query(ctx,
		`SELECT business_id, id, url, alt_text, position
         FROM photos
         WHERE business_id = ANY($1)
         ORDER BY position ASC`, ids)
	if err != nil {
		return fmt.Errorf("fetch photos: %w", err)
	}
	for photoRows.Next() {
		var (
			businessID uuid.UUID
			photo      entity.Photo
			alt        sql.NullString
		)
		if err := photoRows.Scan(&businessID, &photo.ID, &photo.URL, &alt, &photo.Position); err != nil {
			photoRows.Close()
			return fmt.Errorf("scan photo: %w", err)
		}
		if alt.Valid {
			photo.AltText = &alt.String
		}
		if b, ok := index[businessID]; ok {
			b.Photos = append(b.Photos, photo)
		}
	}
	if err := photoRows.Err(); err != nil {
		photoRows.Close()
		return fmt.Errorf("photos rows: %w", err)
	}
	photoRows.Close()

	return nil
}

// businessScanTargets carries the nullable scan scratch for one business row.
type businessScanTargets struct {
	description       sql.NullString
	phone             sql.NullString
	website           sql.NullString
	address           sql.NullString
	city              sql.NullString
	state             sql.NullString
	zip               sql.NullString
	latitude          sql.NullFloat64
	longitude         sql.NullFloat64
	hours             []byte
	serviceAreaRadius sql.NullFloat64
}

func (s *businessScanTargets) targets(b *entity.Business) []any {
	return []any{
		&b.ID,
		&b.Name,
		&s.description,
		&b.Status,
		&s.phone,
		&s.website,
		&s.address,
		&s.city,
		&s.state,
		&s.zip,
		&s.latitude,
		&s.longitude,
		&b.Rating,
		&b.ReviewCount,
		&b.PriceTier,
		&s.hours,
		&b.Verified,
		&b.Featured,
		&s.serviceAreaRadius,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
}

func (s *businessScanTargets) assign(b *entity.Business) {
	b.Description = nullableOut(s.description)
	b.Phone = nullableOut(s.phone)
	b.Website = nullableOut(s.website)
	b.Address = nullableOut(s.address)
	b.City = nullableOut(s.city)
	b.State = nullableOut(s.state)
	b.Zip = nullableOut(s.zip)
	if s.latitude.Valid {
		b.Latitude = &s.latitude.Float64
	}
	if s.longitude.Valid {
		b.Longitude = &s.longitude.Float64
	}
	if s.serviceAreaRadius.Valid {
		b.ServiceAreaRadius = &s.serviceAreaRadius.Float64
	}
	if len(s.hours) > 0 {
		var hours entity.WeekHours
		if err := json.Unmarshal(s.hours, &hours); err == nil {
			b.Hours = hours
		}
	}
}

func scanBusinesses(rows pgx.Rows) ([]entity.BusinessWithRelations, error) {
	defer rows.Close()

	var businesses []entity.BusinessWithRelations
	for rows.Next() {
		var (
			b       entity.BusinessWithRelations
			scratch businessScanTargets
		)
		if err := rows.Scan(scratch.targets(&b.Business)...); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		scratch.assign(&b.Business)
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("businesses rows: %w", err)
	}
	return businesses, nil
}

func nullableOut(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
