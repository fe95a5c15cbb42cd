// Package proxy serves the Reddit proxy endpoints consumed by the trend fetcher.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/api"
)

const (
	maxLimit           = 100
	defaultCommentsMax = 50
	defaultSearchLimit = 25
	defaultTimeframe   = "day"
)

var (
	subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)
	postIDPattern    = regexp.MustCompile(`^[a-z0-9]{1,12}$`)

	timeframes = map[string]bool{
		"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true,
	}
)

// Upstream is the authenticated Reddit API the proxy forwards to
type Upstream interface {
	Top(ctx context.Context, subreddit string, limit int, timeframe string) (*api.Response, error)
	Comments(ctx context.Context, subreddit, postID string, limit int) (*api.Response, error)
	SearchSubreddits(ctx context.Context, query string, limit int) (*api.Response, error)
	GetRateLimitStatus() api.RateLimitStatus
}

// Handler forwards proxy requests upstream and relays the responses unchanged
type Handler struct {
	upstream Upstream
	service  string
	version  string
	log      *logrus.Logger
}

// NewHandler creates a proxy handler; service and version are reported on GET /
func NewHandler(upstream Upstream, service, version string, log *logrus.Logger) *Handler {
	return &Handler{upstream: upstream, service: service, version: version, log: log}
}

// Register adds the proxy routes to e
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.describe)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/api/reddit/search", h.search)
	e.GET("/api/reddit/r/:subreddit/comments/:postId", h.comments)
	e.GET("/api/reddit/:subreddit", h.posts)
}

func (h *Handler) describe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":    h.service,
		"version":    h.version,
		"rate_limit": h.upstream.GetRateLimitStatus(),
		"endpoints": []string{
			"GET /api/reddit/:subreddit?limit=&t=",
			"GET /api/reddit/r/:subreddit/comments/:postId?limit=",
			"GET /api/reddit/search?q=&type=sr&limit=",
		},
	})
}

func (h *Handler) posts(c echo.Context) error {
	subreddit := c.Param("subreddit")
	if !subredditPattern.MatchString(subreddit) {
		return badRequest(c, "invalid subreddit name")
	}

	timeframe := c.QueryParam("t")
	if timeframe == "" {
		timeframe = defaultTimeframe
	}
	if !timeframes[timeframe] {
		return badRequest(c, "invalid timeframe, expected one of hour, day, week, month, year, all")
	}

	limit := parseLimit(c.QueryParam("limit"), maxLimit)
	resp, err := h.upstream.Top(c.Request().Context(), subreddit, limit, timeframe)
	return h.relay(c, resp, err, logrus.Fields{"subreddit": subreddit, "limit": limit, "timeframe": timeframe})
}

func (h *Handler) comments(c echo.Context) error {
	subreddit := c.Param("subreddit")
	postID := c.Param("postId")
	if !subredditPattern.MatchString(subreddit) {
		return badRequest(c, "invalid subreddit name")
	}
	if !postIDPattern.MatchString(postID) {
		return badRequest(c, "invalid post id")
	}

	limit := parseLimit(c.QueryParam("limit"), defaultCommentsMax)
	resp, err := h.upstream.Comments(c.Request().Context(), subreddit, postID, limit)
	return h.relay(c, resp, err, logrus.Fields{"subreddit": subreddit, "post_id": postID, "limit": limit})
}

func (h *Handler) search(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return badRequest(c, "missing search query")
	}
	if t := c.QueryParam("type"); t != "" && t != "sr" {
		return badRequest(c, "only subreddit search (type=sr) is supported")
	}

	limit := parseLimit(c.QueryParam("limit"), defaultSearchLimit)
	resp, err := h.upstream.SearchSubreddits(c.Request().Context(), query, limit)
	return h.relay(c, resp, err, logrus.Fields{"query": query, "limit": limit})
}

// relay writes the upstream response with its own status code. A rejected token
// request keeps its status; any other failure to reach Reddit is a 502.
func (h *Handler) relay(c echo.Context, resp *api.Response, err error, fields logrus.Fields) error {
	var authErr *api.AuthError
	if errors.As(err, &authErr) {
		h.log.WithFields(fields).WithField("status_code", authErr.StatusCode).Error("Reddit authentication failed")
		return c.JSON(authErr.StatusCode, map[string]string{
			"error": "Reddit authentication failed",
		})
	}
	if err != nil {
		h.log.WithFields(fields).WithError(err).Error("Upstream request failed")
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "Network Error",
		})
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			c.Response().Header().Set("Retry-After", retryAfter)
		}
	}

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// parseLimit returns the query limit clamped to 1..100, or fallback when absent or invalid
func parseLimit(raw string, fallback int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return min(limit, maxLimit)
}
