// Package stats runs the trend analysis on a schedule and keeps the latest report.
package stats

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/metrics"
	"github.com/brettboylen/trend-whisperer/models"
)

const (
	defaultTopSubredditsLimit = 10
	defaultTopPostsLimit      = 10
)

var (
	// ErrRunInProgress is returned by Refresh while another analysis is running
	ErrRunInProgress = errors.New("analysis already in progress")

	// ErrTrendNotFound is returned by Trend when the latest analysis has no such keyword
	ErrTrendNotFound = errors.New("trend not found")
)

// Runner produces one analysis report per call
type Runner interface {
	Analyze(ctx context.Context) (*models.Analysis, error)
}

// Archive stores the posts fetched by each run
type Archive interface {
	SavePosts(ctx context.Context, posts []models.Post) (int, error)
	GetTotalPosts(ctx context.Context) (int, error)
	GetSubredditPostCounts(ctx context.Context, limit int) (map[string]int, error)
	GetTopPostsByScore(ctx context.Context, limit int) ([]models.Post, error)
}

// Collector runs the analysis and serves its latest result. Only the latest
// successful analysis is kept.
type Collector struct {
	runner             Runner
	archive            Archive
	metrics            *metrics.Collector
	interval           time.Duration
	topSubredditsLimit int
	topPostsLimit      int
	log                *logrus.Logger

	running sync.Mutex // held for the duration of a run

	mutex  sync.RWMutex
	latest *models.Analysis
	stats  models.Statistics
}

// NewCollector creates a new collector. archive and m may be nil.
func NewCollector(runner Runner, archive Archive, m *metrics.Collector, interval time.Duration, log *logrus.Logger) *Collector {
	return &Collector{
		runner:             runner,
		archive:            archive,
		metrics:            m,
		interval:           interval,
		topSubredditsLimit: defaultTopSubredditsLimit,
		topPostsLimit:      defaultTopPostsLimit,
		log:                log,
		stats: models.Statistics{
			TopSubreddits: make(map[string]int),
			TopPosts:      []models.Post{},
			StartTime:     time.Now(),
			LastUpdated:   time.Now(),
		},
	}
}

// Start runs an analysis immediately and then once per interval until ctx is done
func (c *Collector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.WithField("interval", c.interval.String()).Info("Starting trend analysis runner")
	c.runScheduled(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.runScheduled(ctx)
		}
	}
}

func (c *Collector) runScheduled(ctx context.Context) {
	_, err := c.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		c.log.Debug("Skipping scheduled analysis, a run is already in progress")
	case ctx.Err() != nil:
	default:
		c.log.WithError(err).Error("Scheduled analysis failed")
	}
}

// Refresh runs an analysis now and waits for it. It returns ErrRunInProgress
// without running when another analysis has not finished yet.
func (c *Collector) Refresh(ctx context.Context) (*models.Analysis, error) {
	if !c.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer c.running.Unlock()

	return c.run(ctx)
}

func (c *Collector) run(ctx context.Context) (*models.Analysis, error) {
	start := time.Now()
	analysis, err := c.runner.Analyze(ctx)
	duration := time.Since(start)

	if err != nil {
		c.metrics.ObserveAnalysis("failed", duration, 0)
		c.recordFailure(err)
		return analysis, err
	}

	c.metrics.ObserveAnalysis("success", duration, len(analysis.Trends))
	c.archivePosts(ctx, analysis)

	c.mutex.Lock()
	c.latest = analysis
	c.stats.TotalRuns++
	c.stats.LastError = ""
	c.stats.LastUpdated = time.Now()
	c.mutex.Unlock()

	c.log.WithFields(logrus.Fields{
		"run_id":            analysis.ID,
		"posts":             analysis.PostCount,
		"trends":            len(analysis.Trends),
		"failed_subreddits": analysis.FailedSubreddits,
		"duration":          duration.String(),
	}).Info("Trend analysis complete")

	return analysis, nil
}

func (c *Collector) recordFailure(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stats.TotalRuns++
	c.stats.FailedRuns++
	c.stats.LastError = err.Error()
	c.stats.LastUpdated = time.Now()
}

// archivePosts saves the run's posts and refreshes the archive statistics.
// Archive failures are logged; the analysis itself still counts.
func (c *Collector) archivePosts(ctx context.Context, analysis *models.Analysis) {
	if c.archive == nil {
		return
	}

	if _, err := c.archive.SavePosts(ctx, analysis.Posts); err != nil {
		c.log.WithError(err).WithField("run_id", analysis.ID).Error("Failed to archive posts")
		return
	}

	total, err := c.archive.GetTotalPosts(ctx)
	if err != nil {
		c.log.WithError(err).Error("Failed to get total posts")
		return
	}

	counts, err := c.archive.GetSubredditPostCounts(ctx, c.topSubredditsLimit)
	if err != nil {
		c.log.WithError(err).Error("Failed to get subreddit post counts")
		return
	}

	topPosts, err := c.archive.GetTopPostsByScore(ctx, c.topPostsLimit)
	if err != nil {
		c.log.WithError(err).Error("Failed to get top posts")
		return
	}

	c.mutex.Lock()
	c.stats.ArchivedPosts = total
	c.stats.TopSubreddits = counts
	c.stats.TopPosts = topPosts
	c.mutex.Unlock()
}

// Latest returns the latest successful analysis, or nil before the first one
func (c *Collector) Latest() *models.Analysis {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.latest
}

// Trends returns up to limit trends of the latest analysis; limit <= 0 means all.
// The result is never nil.
func (c *Collector) Trends(limit int) []models.Trend {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.latest == nil {
		return []models.Trend{}
	}

	trends := c.latest.Trends
	if limit > 0 && limit < len(trends) {
		trends = trends[:limit]
	}
	return append([]models.Trend{}, trends...)
}

// Trend looks up a trend of the latest analysis by keyword, ignoring case
func (c *Collector) Trend(keyword string) (models.Trend, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.latest != nil {
		for _, trend := range c.latest.Trends {
			if strings.EqualFold(trend.Keyword, keyword) {
				return trend, nil
			}
		}
	}
	return models.Trend{}, fmt.Errorf("%w: %q", ErrTrendNotFound, keyword)
}

// GetStatistics returns a copy of the current statistics
func (c *Collector) GetStatistics() models.Statistics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := c.stats
	stats.TopSubreddits = maps.Clone(c.stats.TopSubreddits)
	stats.TopPosts = append([]models.Post{}, c.stats.TopPosts...)
	return stats
}
