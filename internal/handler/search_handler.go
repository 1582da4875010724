package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/localhubhq/directory-api/internal/dto"
	"github.com/localhubhq/directory-api/internal/geo"
	"github.com/localhubhq/directory-api/internal/service"
	"github.com/localhubhq/directory-api/internal/service/trending"
)

// SearchHandler exposes the business search endpoints.
type SearchHandler struct {
	service *service.BusinessSearchService
}

// NewSearchHandler creates a new handler instance.
func NewSearchHandler(service *service.BusinessSearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search handles GET /search requests.
func (h *SearchHandler) Search(c echo.Context) error {
	query, err := parseSearchQuery(c)
	if err != nil {
		return Error(c, http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Search(c.Request().Context(), query)
	if err != nil {
		return writeSearchError(c, err)
	}
	return Success(c, http.StatusOK, "search results", result)
}

// Nearby handles GET /businesses/nearby requests.
func (h *SearchHandler) Nearby(c echo.Context) error {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(c.QueryParam("lat")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(c.QueryParam("lng")), 64)
	if latErr != nil || lngErr != nil {
		return Error(c, http.StatusBadRequest, "lat and lng are required")
	}

	radiusKm := parseFloatDefault(c.QueryParam("radius_km"), 10)
	limit := parseIntDefault(c.QueryParam("limit"), 20)
	category := strings.TrimSpace(c.QueryParam("category"))

	result, err := h.service.Nearby(c.Request().Context(), geo.Point{Lat: lat, Lng: lng}, radiusKm, limit, category)
	if err != nil {
		return writeSearchError(c, err)
	}
	return Success(c, http.StatusOK, "nearby businesses", result)
}

// ByCategory handles GET /categories/:slug/businesses requests.
func (h *SearchHandler) ByCategory(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	location, err := parseLocation(c)
	if err != nil {
		return Error(c, http.StatusBadRequest, err.Error())
	}

	result, err := h.service.ByCategory(
		c.Request().Context(),
		slug,
		location,
		parseIntDefault(c.QueryParam("limit"), 20),
		parseIntDefault(c.QueryParam("offset"), 0),
	)
	if err != nil {
		return writeSearchError(c, err)
	}
	return Success(c, http.StatusOK, "category businesses", result)
}

// Trending handles GET /trending requests.
func (h *SearchHandler) Trending(c echo.Context) error {
	timeframe := trending.Timeframe(strings.TrimSpace(c.QueryParam("timeframe")))
	if timeframe == "" {
		timeframe = trending.Timeframe7d
	}
	location, err := parseLocation(c)
	if err != nil {
		return Error(c, http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Trending(
		c.Request().Context(),
		timeframe,
		parseIntDefault(c.QueryParam("limit"), 20),
		location,
	)
	if err != nil {
		return writeSearchError(c, err)
	}
	return Success(c, http.StatusOK, "trending businesses", result)
}

func parseSearchQuery(c echo.Context) (dto.SearchQuery, error) {
	location, err := parseLocation(c)
	if err != nil {
		return dto.SearchQuery{}, err
	}

	query := dto.SearchQuery{
		FreeText:     strings.TrimSpace(c.QueryParam("q")),
		Location:     location,
		CategorySlug: strings.TrimSpace(c.QueryParam("category")),
		Sort:         dto.SortMode(strings.TrimSpace(c.QueryParam("sort"))),
		Pagination: dto.Pagination{
			Limit:  parseIntDefault(c.QueryParam("limit"), 0),
			Offset: parseIntDefault(c.QueryParam("offset"), 0),
		},
	}

	if v := strings.TrimSpace(c.QueryParam("min_rating")); v != "" {
		minRating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return dto.SearchQuery{}, errors.New("invalid min_rating")
		}
		query.Filters.MinRating = &minRating
	}
	// Multiple checked star thresholds collapse to the lowest one.
	if v := strings.TrimSpace(c.QueryParam("ratings")); v != "" {
		var thresholds []float64
		for _, part := range strings.Split(v, ",") {
			t, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return dto.SearchQuery{}, errors.New("invalid ratings list")
			}
			thresholds = append(thresholds, t)
		}
		query.Filters.MinRating = service.LowestRatingThreshold(thresholds)
	}
	query.Filters.Verified = parseBool(c.QueryParam("verified"))
	query.Filters.Featured = parseBool(c.QueryParam("featured"))
	query.Filters.OpenNow = parseBool(c.QueryParam("open_now"))
	if v := strings.TrimSpace(c.QueryParam("price")); v != "" {
		for _, part := range strings.Split(v, ",") {
			tier, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return dto.SearchQuery{}, errors.New("invalid price list")
			}
			query.Filters.PriceTiers = append(query.Filters.PriceTiers, tier)
		}
	}

	return query, nil
}

func parseLocation(c echo.Context) (dto.Location, error) {
	location := dto.Location{
		Place: strings.TrimSpace(c.QueryParam("location")),
	}

	latStr := strings.TrimSpace(c.QueryParam("lat"))
	lngStr := strings.TrimSpace(c.QueryParam("lng"))
	if latStr != "" || lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			return dto.Location{}, errors.New("lat and lng must both be valid numbers")
		}
		location.Point = &geo.Point{Lat: lat, Lng: lng}
	}

	boxParams := []string{"north", "south", "east", "west"}
	boxSet := 0
	for _, p := range boxParams {
		if strings.TrimSpace(c.QueryParam(p)) != "" {
			boxSet++
		}
	}
	if boxSet > 0 {
		if boxSet != len(boxParams) {
			return dto.Location{}, errors.New("bounding box requires north, south, east, and west")
		}
		var edges [4]float64
		for i, p := range boxParams {
			v, err := strconv.ParseFloat(strings.TrimSpace(c.QueryParam(p)), 64)
			if err != nil {
				return dto.Location{}, errors.New("invalid bounding box value " + p)
			}
			edges[i] = v
		}
		location.Bounds = &geo.BoundingBox{North: edges[0], South: edges[1], East: edges[2], West: edges[3]}
	}

	if v := strings.TrimSpace(c.QueryParam("radius")); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return dto.Location{}, errors.New("invalid radius")
		}
		location.RadiusMiles = &radius
	}

	return location, nil
}

// writeSearchError maps the service error taxonomy onto HTTP statuses,
// keeping the empty-versus-failed distinction visible to the UI layer.
func writeSearchError(c echo.Context, err error) error {
	var invalid service.InvalidQueryError
	if errors.As(err, &invalid) {
		return Error(c, http.StatusBadRequest, invalid.Message)
	}
	var timeout service.SearchTimeoutError
	if errors.As(err, &timeout) {
		return Error(c, http.StatusGatewayTimeout, timeout.Error())
	}
	var backend service.SearchBackendError
	if errors.As(err, &backend) {
		return Error(c, http.StatusBadGateway, "search backend unavailable")
	}
	return Error(c, http.StatusInternalServerError, "search failed")
}

func parseIntDefault(input string, fallback int) int {
	if input == "" {
		return fallback
	}
	if value, err := strconv.Atoi(input); err == nil {
		return value
	}
	return fallback
}

func parseFloatDefault(input string, fallback float64) float64 {
	if input == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(input, 64); err == nil {
		return value
	}
	return fallback
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
