// Package fetcher is the client side of the Reddit proxy: it retrieves posts,
// comments and subreddit search results and validates their shape.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/brettboylen/trend-whisperer/metrics"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultTimeframe = "day"
	defaultLimit     = 100 // max number of posts per request
	maxComments      = 50
	minCommentScore  = 5
	maxBodyBytes     = 8 << 20
)

// Config holds the proxy client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Timeframe string
}

// Client fetches Reddit data through the proxy
type Client struct {
	baseURL    string
	timeframe  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Collector
	log        *logrus.Logger
}

// NewClient creates a new proxy client; m may be nil
func NewClient(cfg Config, m *metrics.Collector, log *logrus.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = defaultTimeframe
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reddit-proxy",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		// only transport failures count against the proxy
		IsSuccessful: func(err error) bool {
			var netErr *NetworkError
			if errors.As(err, &netErr) {
				return errors.Is(err, context.Canceled)
			}
			return true
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeframe:  cfg.Timeframe,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		metrics:    m,
		log:        log,
	}
}

// FetchPosts fetches the top posts of a subreddit. On failure it logs and returns an
// empty slice together with a *NetworkError, *ProtocolError or *RateLimitError.
func (c *Client) FetchPosts(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	fields := logrus.Fields{
		"subreddit": subreddit,
		"limit":     limit,
		"timeframe": c.timeframe,
	}
	c.log.WithFields(fields).Debug("Fetching posts")

	start := time.Now()
	posts, err := c.fetchPosts(ctx, subreddit, limit)
	c.observe("posts", start, err)
	if err != nil {
		c.logFailure(err, fields, "Error fetching posts")
		return []models.Post{}, err
	}

	c.metrics.AddPosts(len(posts))
	c.log.WithFields(fields).WithField("count", len(posts)).Info("Fetched posts from subreddit")
	return posts, nil
}

func (c *Client) fetchPosts(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("t", c.timeframe)

	body, err := c.get(ctx, "posts", "/api/reddit/"+url.PathEscape(subreddit), query)
	if err != nil {
		return nil, err
	}

	children, err := decodeListing[RedditPost](body)
	if err != nil {
		return nil, &ProtocolError{Op: "posts", Err: err}
	}

	posts := make([]models.Post, 0, len(children))
	for _, ch := range children {
		if ch.Kind != "" && ch.Kind != "t3" {
			continue
		}
		posts = append(posts, ch.Data.toModel())
	}
	return posts, nil
}

// FetchComments fetches up to 50 comments of a post, dropping removed or deleted
// bodies and comments scored below 5. Failures degrade like FetchPosts.
func (c *Client) FetchComments(ctx context.Context, postID, subreddit string) ([]models.Comment, error) {
	fields := logrus.Fields{
		"subreddit": subreddit,
		"post_id":   postID,
	}

	start := time.Now()
	comments, err := c.fetchComments(ctx, postID, subreddit)
	c.observe("comments", start, err)
	if err != nil {
		c.logFailure(err, fields, "Error fetching comments")
		return []models.Comment{}, err
	}

	c.log.WithFields(fields).WithField("count", len(comments)).Debug("Fetched comments")
	return comments, nil
}

func (c *Client) fetchComments(ctx context.Context, postID, subreddit string) ([]models.Comment, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(maxComments))

	path := fmt.Sprintf("/api/reddit/r/%s/comments/%s", url.PathEscape(subreddit), url.PathEscape(postID))
	body, err := c.get(ctx, "comments", path, query)
	if err != nil {
		return nil, err
	}

	children, err := decodeListing[RedditComment](body)
	if err != nil {
		return nil, &ProtocolError{Op: "comments", Err: err}
	}

	comments := make([]models.Comment, 0, len(children))
	for _, ch := range children {
		if ch.Kind != "" && ch.Kind != "t1" {
			continue
		}
		if !keepComment(ch.Data) {
			continue
		}
		comments = append(comments, ch.Data.toModel())
		if len(comments) == maxComments {
			break
		}
	}
	return comments, nil
}

func keepComment(c RedditComment) bool {
	body := strings.TrimSpace(c.Body)
	if body == "" || body == "[removed]" || body == "[deleted]" {
		return false
	}
	return c.Score >= minCommentScore
}

// SearchSubreddits searches subreddits by keyword
func (c *Client) SearchSubreddits(ctx context.Context, query string, limit int) ([]models.SubredditInfo, error) {
	fields := logrus.Fields{
		"query": query,
		"limit": limit,
	}

	start := time.Now()
	results, err := c.searchSubreddits(ctx, query, limit)
	c.observe("search", start, err)
	if err != nil {
		c.logFailure(err, fields, "Error searching subreddits")
		return []models.SubredditInfo{}, err
	}

	c.log.WithFields(fields).WithField("count", len(results)).Debug("Searched subreddits")
	return results, nil
}

func (c *Client) searchSubreddits(ctx context.Context, q string, limit int) ([]models.SubredditInfo, error) {
	query := url.Values{}
	query.Set("q", q)
	query.Set("type", "sr")
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "search", "/api/reddit/search", query)
	if err != nil {
		return nil, err
	}

	children, err := decodeListing[RedditSubreddit](body)
	if err != nil {
		return nil, &ProtocolError{Op: "search", Err: err}
	}

	results := make([]models.SubredditInfo, 0, len(children))
	for _, ch := range children {
		if ch.Data.DisplayName == "" {
			continue
		}
		results = append(results, models.SubredditInfo{
			Name:        ch.Data.DisplayName,
			Subscribers: ch.Data.Subscribers,
			Over18:      ch.Data.Over18,
		})
	}
	return results, nil
}

// get performs one GET through the circuit breaker and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, op, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &NetworkError{Op: op, Err: err}
		}
		return nil, err
	}

	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Op: op, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(truncate(string(body), 200))}
	}

	return body, nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	c.metrics.ObserveFetch(op, outcome(err), time.Since(start))
}

func (c *Client) logFailure(err error, fields logrus.Fields, msg string) {
	entry := c.log.WithFields(fields).WithError(err)
	if errors.Is(err, ratelimit.ErrRateLimited) {
		entry.Warn(msg)
		return
	}
	entry.Error(msg)
}

func outcome(err error) string {
	var protoErr *ProtocolError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &protoErr):
		return "protocol_error"
	default:
		return "network_error"
	}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
