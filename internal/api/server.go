// Package api exposes the HTTP inference endpoint and its supporting
// routes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/logging"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/observability"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/spectrogram"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	cache "github.com/patrickmn/go-cache"
)

// Controller manages the API routes and handlers. The classifier is
// constructed before the controller and treated as read-only shared
// state for the process lifetime.
type Controller struct {
	Echo       *echo.Echo
	Settings   *conf.Settings
	Classifier *audionet.Classifier
	Generator  *spectrogram.Generator

	logger        *slog.Logger
	metrics       *observability.Metrics
	responseCache *cache.Cache
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithMetrics overrides the metrics instance, used in tests.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates the Controller and registers all routes.
func New(settings *conf.Settings, classifier *audionet.Classifier, generator *spectrogram.Generator, opts ...Option) *Controller {
	c := &Controller{
		Echo:       echo.New(),
		Settings:   settings,
		Classifier: classifier,
		Generator:  generator,
		logger:     logging.ForService("api"),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics()
	}
	if settings.Server.CacheTTL > 0 {
		c.responseCache = cache.New(settings.Server.CacheTTL, 2*settings.Server.CacheTTL)
	}

	c.Echo.HideBanner = true
	c.Echo.HidePort = true
	c.Echo.Server.ReadTimeout = settings.Server.ReadTimeout
	c.Echo.Server.WriteTimeout = settings.Server.WriteTimeout

	c.Echo.Use(middleware.Recover())
	c.Echo.Use(middleware.RequestID())
	c.Echo.Use(middleware.BodyLimit(settings.Server.BodyLimit))
	c.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(ctx echo.Context) bool {
			return ctx.Path() == "/metrics"
		},
	}))

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.POST("/api/v1/evaluate", c.handleEvaluate)
	c.Echo.GET("/healthz", c.handleHealth)
	c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
}

// handleHealth reports liveness and model readiness.
func (c *Controller) handleHealth(ctx echo.Context) error {
	if c.Classifier == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":      "degraded",
			"model_ready": false,
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"model_ready": true,
		"classes":     len(c.Classifier.Classes()),
	})
}

// Start serves requests until ctx is canceled, then shuts down
// gracefully.
func (c *Controller) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- c.Echo.Start(c.Settings.Addr())
	}()

	c.logger.Info("server started", "addr", c.Settings.Addr())

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.Echo.Shutdown(shutdownCtx)
	}
}
