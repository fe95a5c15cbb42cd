package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/trend-whisperer/metrics"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/stats"
)

type fakeService struct {
	trends     []models.Trend
	refreshErr error
	refreshed  int
	lastLimit  int
}

func (f *fakeService) Trends(limit int) []models.Trend {
	f.lastLimit = limit
	if limit > 0 && limit < len(f.trends) {
		return f.trends[:limit]
	}
	return f.trends
}

func (f *fakeService) Trend(keyword string) (models.Trend, error) {
	for _, t := range f.trends {
		if strings.EqualFold(t.Keyword, keyword) {
			return t, nil
		}
	}
	return models.Trend{}, fmt.Errorf("%w: %q", stats.ErrTrendNotFound, keyword)
}

func (f *fakeService) Refresh(context.Context) (*models.Analysis, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.Analysis{
		ID:               "run-1",
		Subreddits:       []string{"startups", "SaaS"},
		FailedSubreddits: []string{"SaaS"},
		PostCount:        12,
		Trends:           f.trends,
	}, nil
}

func (f *fakeService) GetStatistics() models.Statistics {
	return models.Statistics{
		TotalRuns:     3,
		FailedRuns:    1,
		TopSubreddits: map[string]int{"startups": 7},
		TopPosts:      []models.Post{{ID: "abc123", Title: "Automation for invoices", Score: 900}},
	}
}

func newTestServer(service trendService) *echo.Echo {
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := newEchoServer(service, metrics.NewCollector("test"), 60000, log)
	e.Logger.SetOutput(io.Discard)
	return e
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sampleTrends() []models.Trend {
	return []models.Trend{
		{Keyword: "automation", Score: 9.5, Subreddits: []string{"startups"}},
		{Keyword: "invoice", Score: 4.2, Subreddits: []string{"SaaS"}},
	}
}

func TestListTrends(t *testing.T) {
	service := &fakeService{trends: sampleTrends()}
	e := newTestServer(service)

	rec := do(e, http.MethodGet, "/api/trends")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Trend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "automation", got[0].Keyword)

	rec = do(e, http.MethodGet, "/api/trends?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)
	assert.Equal(t, 1, service.lastLimit)

	rec = do(e, http.MethodGet, "/api/trends?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTrendsBeforeFirstRun(t *testing.T) {
	e := newTestServer(&fakeService{trends: []models.Trend{}})

	rec := do(e, http.MethodGet, "/api/trends")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetTrend(t *testing.T) {
	e := newTestServer(&fakeService{trends: sampleTrends()})

	rec := do(e, http.MethodGet, "/api/trends/Invoice")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Trend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "invoice", got.Keyword)

	rec = do(e, http.MethodGet, "/api/trends/blockchain")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "trend not found")
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			wantStatus: http.StatusOK,
			wantBody:   `"trend_count":2`,
		},
		{
			name:       "run in progress",
			err:        stats.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantBody:   "analysis already in progress",
		},
		{
			name:       "run failed",
			err:        errors.New("all subreddit fetches failed"),
			wantStatus: http.StatusBadGateway,
			wantBody:   "all subreddit fetches failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &fakeService{trends: sampleTrends(), refreshErr: tc.err}
			e := newTestServer(service)

			rec := do(e, http.MethodPost, "/api/trends/refresh")
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantBody)
			assert.Equal(t, 1, service.refreshed)
		})
	}
}

func TestRefreshRequiresPost(t *testing.T) {
	service := &fakeService{}
	e := newTestServer(service)

	rec := do(e, http.MethodGet, "/api/trends/refresh")
	// GET falls through to the keyword lookup
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, service.refreshed)
}

func TestStatsHealthAndMetrics(t *testing.T) {
	e := newTestServer(&fakeService{})

	rec := do(e, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_runs":3`)
	assert.Contains(t, rec.Body.String(), `"top_posts_by_score":[{"id":"abc123"`)

	rec = do(e, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_analysis_duration_seconds")
}

func TestRateLimitedClient(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := newEchoServer(&fakeService{trends: []models.Trend{}}, nil, 6, log)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/trends").Code)
	rec := do(e, http.MethodGet, "/api/trends")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	// health checks are never throttled
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz").Code)
}
