package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/localhubhq/directory-api/internal/config"
	"github.com/localhubhq/directory-api/internal/handler"
	middlewarepkg "github.com/localhubhq/directory-api/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Search *handler.SearchHandler
	Cache  *handler.CacheHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, handlers Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return handler.Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
	})

	limited := e.Group("", middlewarepkg.SearchRateLimiter(cfg.RateLimitSearch))
	limited.GET("/search", handlers.Search.Search)
	limited.GET("/businesses/nearby", handlers.Search.Nearby)
	limited.GET("/categories/:slug/businesses", handlers.Search.ByCategory)
	limited.GET("/trending", handlers.Search.Trending)

	if handlers.Cache != nil {
		e.GET("/cache/stats", handlers.Cache.Stats)
		e.POST("/cache/invalidate", handlers.Cache.Invalidate)
	}
}
