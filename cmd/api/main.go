package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/localhubhq/directory-api/internal/cache"
	"github.com/localhubhq/directory-api/internal/config"
	"github.com/localhubhq/directory-api/internal/database"
	"github.com/localhubhq/directory-api/internal/geocoder"
	"github.com/localhubhq/directory-api/internal/handler"
	middlewarepkg "github.com/localhubhq/directory-api/internal/middleware"
	"github.com/localhubhq/directory-api/internal/repository"
	"github.com/localhubhq/directory-api/internal/router"
	"github.com/localhubhq/directory-api/internal/service"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer pool.Close()

	businessRepo := repository.NewPGXBusinessRepository(pool)
	searchCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)
	geocoderClient := geocoder.NewClient(nil, cfg.GeocoderBaseURL)

	searchService := service.NewBusinessSearchService(
		businessRepo,
		searchCache,
		service.WithGeocoder(geocoderClient),
		service.WithLogger(log),
		service.WithDefaultRadius(cfg.DefaultRadiusMiles),
		service.WithBackendTimeout(cfg.SearchTimeout),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging(log))
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, router.Handlers{
		Search: handler.NewSearchHandler(searchService),
		Cache:  handler.NewCacheHandler(searchCache),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}
