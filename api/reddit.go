// Package api is the OAuth client for the upstream Reddit API used by the proxy.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"

	defaultMaxRequestsPerMinute = 100 // real Reddit limit
	tokenRefreshMargin          = 60 * time.Second
	maxResponseBytes            = 8 << 20
)

// Response is an upstream response, passed through as is
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// AuthError is returned when the token endpoint answers with anything but 200
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth request failed with status %d: %s", e.StatusCode, e.Body)
}

// RedditAPI represents a Reddit API client using application-only OAuth
type RedditAPI struct {
	clientID     string
	clientSecret string
	userAgent    string
	baseURL      string
	authURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          *logrus.Logger

	mutex       sync.RWMutex
	authMutex   sync.Mutex // serializes token refreshes
	accessToken string
	tokenExpiry time.Time

	rateHeadersMutex    sync.RWMutex
	rateRemainingCached int
	rateResetCached     int
	rateUsedCached      int
}

// NewRedditAPI creates a new Reddit API client. Outbound requests, token
// requests included, are throttled to 95% of maxRequestsPerMinute.
func NewRedditAPI(clientID, clientSecret, userAgent string, maxRequestsPerMinute int, timeout time.Duration, log *logrus.Logger) *RedditAPI {
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = defaultMaxRequestsPerMinute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// no burst; keep a 5% safety buffer under the quota
	targetRate := float64(maxRequestsPerMinute) / 60.0 * 0.95

	return &RedditAPI{
		clientID:        clientID,
		clientSecret:    clientSecret,
		userAgent:       userAgent,
		baseURL:         defaultBaseURL,
		authURL:         defaultAuthURL,
		httpClient:      &http.Client{Timeout: timeout},
		limiter:         rate.NewLimiter(rate.Limit(targetRate), 1),
		log:             log,
		rateResetCached: 600,
	}
}

// RateLimitStatus is the upstream quota as last reported by Reddit
type RateLimitStatus struct {
	Remaining    int `json:"remaining"`
	ResetSeconds int `json:"reset_seconds"`
	Used         int `json:"used"`
}

// GetRateLimitStatus returns the last seen rate limit headers
func (r *RedditAPI) GetRateLimitStatus() RateLimitStatus {
	r.rateHeadersMutex.RLock()
	defer r.rateHeadersMutex.RUnlock()
	return RateLimitStatus{
		Remaining:    r.rateRemainingCached,
		ResetSeconds: r.rateResetCached,
		Used:         r.rateUsedCached,
	}
}

// Top fetches the top posts of a subreddit for a timeframe
func (r *RedditAPI) Top(ctx context.Context, subreddit string, limit int, timeframe string) (*Response, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("t", timeframe)
	query.Set("raw_json", "1")
	return r.get(ctx, "/r/"+url.PathEscape(subreddit)+"/top", query)
}

// Comments fetches the comment tree of a post
func (r *RedditAPI) Comments(ctx context.Context, subreddit, postID string, limit int) (*Response, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	return r.get(ctx, fmt.Sprintf("/r/%s/comments/%s", url.PathEscape(subreddit), url.PathEscape(postID)), query)
}

// SearchSubreddits searches subreddits by name and description
func (r *RedditAPI) SearchSubreddits(ctx context.Context, q string, limit int) (*Response, error) {
	query := url.Values{}
	query.Set("q", q)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	return r.get(ctx, "/subreddits/search", query)
}

// get performs an authenticated GET. A 401 drops the cached token and the
// request is retried once with a fresh one.
func (r *RedditAPI) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		token, err := r.token(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := r.do(ctx, endpoint, token)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			r.log.WithField("path", path).Warn("Access token rejected, re-authenticating")
			r.invalidateToken(token)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			r.log.WithFields(logrus.Fields{
				"path":          path,
				"status_code":   resp.StatusCode,
				"response_body": truncate(string(resp.Body), 200),
			}).Warn("Reddit API error response")
		}
		return resp, nil
	}
}

func (r *RedditAPI) do(ctx context.Context, endpoint, token string) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// token returns a cached access token, fetching a new one when it is missing or
// about to expire
func (r *RedditAPI) token(ctx context.Context) (string, error) {
	if token, ok := r.cachedToken(); ok {
		return token, nil
	}

	r.authMutex.Lock()
	defer r.authMutex.Unlock()

	// another caller may have refreshed it while we waited
	if token, ok := r.cachedToken(); ok {
		return token, nil
	}

	return r.authenticate(ctx)
}

func (r *RedditAPI) cachedToken() (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.accessToken != "" && time.Now().Before(r.tokenExpiry) {
		return r.accessToken, true
	}
	return "", false
}

func (r *RedditAPI) invalidateToken(token string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.accessToken == token {
		r.accessToken = ""
		r.tokenExpiry = time.Time{}
	}
}

// authenticate obtains an application-only token with the client credentials grant
func (r *RedditAPI) authenticate(ctx context.Context) (string, error) {
	r.log.Info("Authenticating with Reddit API")

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute auth request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var authResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("auth response carried no access token")
	}

	lifetime := time.Duration(authResp.ExpiresIn)*time.Second - tokenRefreshMargin
	if lifetime < 0 {
		lifetime = 0
	}

	r.mutex.Lock()
	r.accessToken = authResp.AccessToken
	r.tokenExpiry = time.Now().Add(lifetime)
	r.mutex.Unlock()

	r.log.WithField("expires_in", authResp.ExpiresIn).Info("Successfully authenticated with Reddit API")
	return authResp.AccessToken, nil
}

// updateRateLimits caches the X-Ratelimit-* headers of a response
func (r *RedditAPI) updateRateLimits(resp *http.Response) {
	// X-Ratelimit-Used: approximate number of requests used in this period
	// X-Ratelimit-Remaining: approximate number of requests left to use
	// X-Ratelimit-Reset: approximate number of seconds to end of period
	used := getHeaderAsInt(resp.Header, "X-Ratelimit-Used")
	remaining := getHeaderAsInt(resp.Header, "X-Ratelimit-Remaining")
	reset := getHeaderAsInt(resp.Header, "X-Ratelimit-Reset")

	// skip if we didn't get valid headers for some reason
	if reset == 0 && used == 0 {
		return
	}

	r.rateHeadersMutex.Lock()
	r.rateRemainingCached = remaining
	r.rateResetCached = reset
	r.rateUsedCached = used
	r.rateHeadersMutex.Unlock()

	r.log.WithFields(logrus.Fields{
		"used":      used,
		"remaining": remaining,
		"reset_sec": reset,
	}).Debug("Updated rate limit status from Reddit headers")
}

func getHeaderAsInt(header http.Header, name string) int {
	value := header.Get(name)
	if value == "" {
		return 0
	}

	// Reddit reports remaining requests as a float, e.g. "596.0"
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
