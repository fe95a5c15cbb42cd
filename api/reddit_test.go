package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeReddit struct {
	authCalls    atomic.Int32
	apiCalls     atomic.Int32
	rejectTokens atomic.Int32 // number of API calls to answer with 401
	authStatus   int
	handler      http.HandlerFunc
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/access_token" {
		n := f.authCalls.Add(1)
		if f.authStatus != 0 && f.authStatus != http.StatusOK {
			w.WriteHeader(f.authStatus)
			fmt.Fprint(w, `{"error": 401}`)
			return
		}
		fmt.Fprintf(w, `{"access_token": "token-%d", "token_type": "bearer", "expires_in": 86400}`, n)
		return
	}

	f.apiCalls.Add(1)
	if f.rejectTokens.Load() > 0 {
		f.rejectTokens.Add(-1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.handler(w, r)
}

func newTestAPI(t *testing.T, fake *fakeReddit) *RedditAPI {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	r := NewRedditAPI("id", "secret", "trend-whisperer/test", 600000, 5*time.Second, testLogger())
	r.baseURL = srv.URL
	r.authURL = srv.URL + "/api/v1/access_token"
	return r
}

func TestTopAuthenticatesAndCachesToken(t *testing.T) {
	var gotAuth, gotAgent, gotPath, gotQuery string
	fake := &fakeReddit{handler: func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("X-Ratelimit-Used", "12")
		w.Header().Set("X-Ratelimit-Remaining", "588.0")
		w.Header().Set("X-Ratelimit-Reset", "321")
		fmt.Fprint(w, `{"kind":"Listing","data":{"children":[]}}`)
	}}
	r := newTestAPI(t, fake)

	resp, err := r.Top(context.Background(), "golang", 25, "day")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"kind":"Listing","data":{"children":[]}}`, string(resp.Body))

	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "trend-whisperer/test", gotAgent)
	assert.Equal(t, "/r/golang/top", gotPath)
	assert.Equal(t, "limit=25&raw_json=1&t=day", gotQuery)

	_, err = r.Top(context.Background(), "rust", 25, "week")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.authCalls.Load())

	assert.Equal(t, RateLimitStatus{Remaining: 588, ResetSeconds: 321, Used: 12}, r.GetRateLimitStatus())
}

func TestRetriesOnceAfterUnauthorized(t *testing.T) {
	var gotAuth string
	fake := &fakeReddit{handler: func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{}`)
	}}
	fake.rejectTokens.Store(1)
	r := newTestAPI(t, fake)

	resp, err := r.SearchSubreddits(context.Background(), "saas", 10)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), fake.authCalls.Load())
	assert.Equal(t, int32(2), fake.apiCalls.Load())
	assert.Equal(t, "Bearer token-2", gotAuth)
}

func TestPassesThroughRepeatedUnauthorized(t *testing.T) {
	fake := &fakeReddit{handler: func(w http.ResponseWriter, r *http.Request) {}}
	fake.rejectTokens.Store(5)
	r := newTestAPI(t, fake)

	resp, err := r.Comments(context.Background(), "golang", "abc", 50)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), fake.apiCalls.Load())
}

func TestPassesThroughUpstreamStatus(t *testing.T) {
	var gotPath string
	fake := &fakeReddit{handler: func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found", "error": 404}`)
	}}
	r := newTestAPI(t, fake)

	resp, err := r.Comments(context.Background(), "golang", "abc", 50)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(resp.Body), "Not Found")
	assert.Equal(t, "/r/golang/comments/abc", gotPath)
}

func TestAuthenticationFailure(t *testing.T) {
	fake := &fakeReddit{authStatus: http.StatusUnauthorized, handler: func(w http.ResponseWriter, r *http.Request) {}}
	r := newTestAPI(t, fake)

	_, err := r.Top(context.Background(), "golang", 10, "day")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth request failed with status 401")
	assert.Zero(t, fake.apiCalls.Load())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestAuthenticationForbidden(t *testing.T) {
	fake := &fakeReddit{authStatus: http.StatusForbidden, handler: func(w http.ResponseWriter, r *http.Request) {}}
	r := newTestAPI(t, fake)

	_, err := r.SearchSubreddits(context.Background(), "saas", 10)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
}

func TestTokenRefreshedBeforeExpiry(t *testing.T) {
	fake := &fakeReddit{handler: func(w http.ResponseWriter, r *http.Request) {}}
	r := newTestAPI(t, fake)

	_, err := r.token(context.Background())
	require.NoError(t, err)

	// a token inside the refresh margin counts as expired
	r.mutex.Lock()
	r.tokenExpiry = time.Now().Add(-time.Second)
	r.mutex.Unlock()

	token, err := r.token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestNewRedditAPIRate(t *testing.T) {
	r := NewRedditAPI("id", "secret", "ua", 60, 0, testLogger())
	assert.InDelta(t, 0.95, float64(r.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, r.limiter.Burst())

	r = NewRedditAPI("id", "secret", "ua", 0, 0, testLogger())
	assert.InDelta(t, 100.0/60*0.95, float64(r.limiter.Limit()), 1e-9)
}

func TestGetHeaderAsInt(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string][]string
		key      string
		expected int
	}{
		{
			name: "Valid integer header",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {"42"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 42,
		},
		{
			name: "Float header value",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {"596.0"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 596,
		},
		{
			name: "Empty header value",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {""},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 0,
		},
		{
			name: "Missing header",
			headers: map[string][]string{
				"X-Ratelimit-Used": {"10"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 0,
		},
		{
			name: "Non-numeric header value",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {"not-a-number"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 0,
		},
		{
			name: "NaN header value",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {"NaN"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 0,
		},
		{
			name: "Multiple values for same header (should use first)",
			headers: map[string][]string{
				"X-Ratelimit-Remaining": {"100", "200"},
			},
			key:      "X-Ratelimit-Remaining",
			expected: 100,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header(tc.headers)
			result := getHeaderAsInt(header, tc.key)
			if result != tc.expected {
				t.Errorf("getHeaderAsInt(%v, %q) = %d; want %d",
					header, tc.key, result, tc.expected)
			}
		})
	}
}
