package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/localhubhq/directory-api/internal/cache"
)

// CacheHandler exposes cache observability and invalidation for operators.
type CacheHandler struct {
	cache *cache.SearchCache
}

// NewCacheHandler creates a new handler instance.
func NewCacheHandler(cache *cache.SearchCache) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Stats handles GET /cache/stats requests.
func (h *CacheHandler) Stats(c echo.Context) error {
	hits, misses := h.cache.Stats()
	return Success(c, http.StatusOK, "cache stats", map[string]any{
		"hits":    hits,
		"misses":  misses,
		"entries": h.cache.Len(),
	})
}

// Invalidate handles POST /cache/invalidate requests. An empty prefix purges
// everything.
func (h *CacheHandler) Invalidate(c echo.Context) error {
	prefix := strings.TrimSpace(c.QueryParam("prefix"))
	removed := h.cache.Invalidate(prefix)
	return Success(c, http.StatusOK, "cache invalidated", map[string]any{"removed": removed})
}
