package trends

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]models.SubredditInfo
	errs    map[string]error
	calls   int
}

func (f *fakeSearcher) SearchSubreddits(_ context.Context, query string, _ int) ([]models.SubredditInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if err := f.errs[query]; err != nil {
		return []models.SubredditInfo{}, err
	}
	return f.results[query], nil
}

func discoveryConfig() *Config {
	cfg := DefaultConfig()
	cfg.TrendingSubreddits = []string{"startups", "SaaS"}
	cfg.DiscoveryKeywords = []string{"automation", "indie"}
	cfg.ExcludedSubreddits = []string{"funny"}
	return &cfg
}

func TestDiscoverFiltersCandidates(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]models.SubredditInfo{
			"automation": {
				{Name: "automation", Subscribers: 50000},
				{Name: "Funny", Subscribers: 1000000},
				{Name: "ai", Subscribers: 90000},
				{Name: "AutoModBot", Subscribers: 20000},
				{Name: "dankmemes", Subscribers: 20000},
				{Name: "circlejerk", Subscribers: 20000},
				{Name: "tinysub", Subscribers: 1000},
				{Name: "nsfwautomation", Subscribers: 20000, Over18: true},
			},
			"indie": {
				{Name: "indiehackers", Subscribers: 80000},
				{Name: "saas", Subscribers: 150000},
				{Name: "Automation", Subscribers: 50000},
			},
		},
	}

	d := NewDiscoverer(searcher, nil, discoveryConfig(), testLogger())
	got := d.Discover(context.Background())

	assert.Equal(t, []string{"startups", "SaaS", "automation", "indiehackers"}, got)
}

func TestDiscoverCachesResult(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]models.SubredditInfo{
			"automation": {{Name: "automation", Subscribers: 50000}},
		},
	}

	d := NewDiscoverer(searcher, nil, discoveryConfig(), testLogger())
	first := d.Discover(context.Background())
	calls := searcher.calls

	second := d.Discover(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, calls, searcher.calls)

	// callers get their own copy
	second[0] = "mutated"
	assert.Equal(t, "startups", d.Discover(context.Background())[0])
}

func TestDiscoverDegradesToSeeds(t *testing.T) {
	searcher := &fakeSearcher{
		errs: map[string]error{
			"automation": errors.New("connection refused"),
			"indie":      errors.New("connection refused"),
		},
	}

	d := NewDiscoverer(searcher, nil, discoveryConfig(), testLogger())
	assert.Equal(t, []string{"startups", "SaaS"}, d.Discover(context.Background()))

	// failed runs are not cached
	d.Discover(context.Background())
	assert.Equal(t, 4, searcher.calls)
}

func TestDiscoverBacksOffOnRateLimit(t *testing.T) {
	searcher := &fakeSearcher{
		errs: map[string]error{"automation": ratelimit.ErrRateLimited},
		results: map[string][]models.SubredditInfo{
			"indie": {{Name: "indiehackers", Subscribers: 80000}},
		},
	}
	limiter := ratelimit.New(ratelimit.Options{MinDelay: time.Millisecond}, testLogger())

	d := NewDiscoverer(searcher, limiter, discoveryConfig(), testLogger())
	got := d.Discover(context.Background())

	assert.Equal(t, []string{"startups", "SaaS", "indiehackers"}, got)
	// one rate-limited search, one success: the backoff is back at its base
	assert.Equal(t, time.Millisecond, limiter.BackoffDelay())
}

func TestDiscoverWithoutSearcher(t *testing.T) {
	d := NewDiscoverer(nil, nil, discoveryConfig(), testLogger())
	assert.Equal(t, []string{"startups", "SaaS"}, d.Discover(context.Background()))
}

func TestDiscoverStopsOnCancel(t *testing.T) {
	searcher := &fakeSearcher{}
	limiter := ratelimit.New(ratelimit.Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDiscoverer(searcher, limiter, discoveryConfig(), testLogger())
	assert.Equal(t, []string{"startups", "SaaS"}, d.Discover(ctx))
	assert.Zero(t, searcher.calls)
}
