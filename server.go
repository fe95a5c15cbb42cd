package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/trend-whisperer/metrics"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/stats"
)

// trendService is what the API serves; *stats.Collector implements it
type trendService interface {
	Trends(limit int) []models.Trend
	Trend(keyword string) (models.Trend, error)
	Refresh(ctx context.Context) (*models.Analysis, error)
	GetStatistics() models.Statistics
}

// refreshResponse summarizes a run triggered through the API
type refreshResponse struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Subreddits       int       `json:"subreddits"`
	FailedSubreddits []string  `json:"failed_subreddits"`
	PostCount        int       `json:"post_count"`
	TrendCount       int       `json:"trend_count"`
}

// newEchoServer builds the trend API with its middleware and routes
func newEchoServer(service trendService, m *metrics.Collector, requestsPerMinute int, log *logrus.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(requestsPerMinute) / 60.0),
				Burst:     max(requestsPerMinute/6, 1),
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"error": "Unable to identify client",
			})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded, please try again later",
			})
		},
	}
	e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig))

	e.GET("/api/trends", func(c echo.Context) error {
		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "limit must be a non-negative integer",
				})
			}
			limit = n
		}
		return c.JSON(http.StatusOK, service.Trends(limit))
	})

	e.GET("/api/trends/:keyword", func(c echo.Context) error {
		trend, err := service.Trend(c.Param("keyword"))
		if errors.Is(err, stats.ErrTrendNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": err.Error(),
			})
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, trend)
	})

	e.POST("/api/trends/refresh", func(c echo.Context) error {
		analysis, err := service.Refresh(c.Request().Context())
		if errors.Is(err, stats.ErrRunInProgress) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		}
		if err != nil {
			log.WithError(err).Warn("Requested analysis failed")
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": err.Error(),
			})
		}

		return c.JSON(http.StatusOK, refreshResponse{
			ID:               analysis.ID,
			StartedAt:        analysis.StartedAt,
			FinishedAt:       analysis.FinishedAt,
			Subreddits:       len(analysis.Subreddits),
			FailedSubreddits: analysis.FailedSubreddits,
			PostCount:        analysis.PostCount,
			TrendCount:       len(analysis.Trends),
		})
	})

	e.GET("/api/stats", func(c echo.Context) error {
		return c.JSON(http.StatusOK, service.GetStatistics())
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}

// startEchoServer serves the trend API until ctx is cancelled
func startEchoServer(ctx context.Context, port int, e *echo.Echo, log *logrus.Logger) {
	go func() {
		serverAddr := ":" + strconv.Itoa(port)
		log.WithField("port", port).Info("Starting API server")
		if err := e.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	// wait for context cancellation to shut down server
	<-ctx.Done()
	log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server shutdown failed")
	}
}
