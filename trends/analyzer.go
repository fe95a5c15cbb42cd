// Package trends turns Reddit posts into ranked keyword trends: it discovers
// subreddits, fetches their posts in rate-limited batches, buckets the posts by
// keyword, derives metrics per bucket and scores the buckets that pass the
// engagement thresholds.
package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

// ErrAllSourcesFailed is returned alongside the run report when the fetch of every
// subreddit failed
var ErrAllSourcesFailed = errors.New("all subreddit fetches failed")

// PostSource fetches the top posts of a subreddit
type PostSource interface {
	FetchPosts(ctx context.Context, subreddit string, limit int) ([]models.Post, error)
}

// Analyzer runs the trend pipeline. It holds no state between runs.
type Analyzer struct {
	cfg          *Config
	source       PostSource
	limiter      *ratelimit.Limiter
	discoverer   *Discoverer
	contributors []ScoreContributor
	log          *logrus.Logger
	now          func() time.Time
}

// NewAnalyzer creates an analyzer. With a nil discoverer only the seed subreddits
// are fetched; with a nil limiter a default one sized to cfg.BatchSize is used.
// Without contributors the metrics are pinned to cfg.Defaults.
func NewAnalyzer(cfg *Config, source PostSource, limiter *ratelimit.Limiter, discoverer *Discoverer, log *logrus.Logger, contributors ...ScoreContributor) *Analyzer {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Options{MaxConcurrent: cfg.BatchSize}, log)
	}
	if len(contributors) == 0 {
		contributors = []ScoreContributor{NewConstantContributor(cfg.Defaults)}
	}

	return &Analyzer{
		cfg:          cfg,
		source:       source,
		limiter:      limiter,
		discoverer:   discoverer,
		contributors: contributors,
		log:          log,
		now:          time.Now,
	}
}

// AnalyzeTrends runs the pipeline and returns the ranked trends
func (a *Analyzer) AnalyzeTrends(ctx context.Context) ([]models.Trend, error) {
	report, err := a.Analyze(ctx)
	if report == nil {
		return nil, err
	}
	return report.Trends, err
}

type fetchResult struct {
	done  bool
	posts []models.Post
	err   error
}

// Analyze runs the pipeline and returns the full run report. Subreddits that fail
// to fetch are listed in the report and otherwise ignored; only a run in which
// every fetch failed reports ErrAllSourcesFailed. Cancelling ctx aborts the run.
func (a *Analyzer) Analyze(ctx context.Context) (*models.Analysis, error) {
	report := &models.Analysis{
		ID:               uuid.NewString(),
		StartedAt:        a.now(),
		FailedSubreddits: []string{},
		Trends:           []models.Trend{},
	}
	log := a.log.WithField("run_id", report.ID)

	report.Subreddits = a.subreddits(ctx)
	log.WithField("subreddits", len(report.Subreddits)).Info("Starting trend analysis")

	results := make([]fetchResult, len(report.Subreddits))
	indices := make([]int, len(report.Subreddits))
	for i := range indices {
		indices[i] = i
	}

	batchErr := ratelimit.ProcessBatch(ctx, a.limiter, indices, func(ctx context.Context, i int) error {
		posts, err := a.source.FetchPosts(ctx, report.Subreddits[i], a.cfg.PostLimit)
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return err
		}
		results[i] = fetchResult{done: true, posts: posts, err: err}
		return nil
	}, a.cfg.BatchSize)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if batchErr != nil {
		log.WithError(batchErr).Warn("Fetching stopped early, analyzing the posts fetched so far")
	}

	for i, res := range results {
		if !res.done {
			res.err = batchErr
		}
		if res.err != nil {
			report.FailedSubreddits = append(report.FailedSubreddits, report.Subreddits[i])
			continue
		}
		report.Posts = append(report.Posts, res.posts...)
	}
	report.PostCount = len(report.Posts)

	trends, err := a.rank(ctx, report.Posts)
	if err != nil {
		return nil, err
	}
	report.Trends = trends
	report.FinishedAt = a.now()

	log.WithFields(logrus.Fields{
		"posts":    report.PostCount,
		"failed":   len(report.FailedSubreddits),
		"trends":   len(report.Trends),
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Trend analysis complete")

	if len(report.Subreddits) > 0 && len(report.FailedSubreddits) == len(report.Subreddits) {
		return report, fmt.Errorf("%w (%d subreddits)", ErrAllSourcesFailed, len(report.Subreddits))
	}
	return report, nil
}

func (a *Analyzer) subreddits(ctx context.Context) []string {
	if a.discoverer != nil {
		return a.discoverer.Discover(ctx)
	}
	return append([]string(nil), a.cfg.TrendingSubreddits...)
}

// rank buckets posts by keyword, drops buckets below the thresholds, lets the
// contributors refine the leading candidates and sorts by score
func (a *Analyzer) rank(ctx context.Context, posts []models.Post) ([]models.Trend, error) {
	now := a.now()
	buckets := ExtractKeywords(posts, a.cfg.MinWordLength, a.cfg.MinTermFrequency, a.cfg.StopWords)

	keywords := make([]string, 0, len(buckets))
	for keyword := range buckets {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	trends := make([]models.Trend, 0)
	for _, keyword := range keywords {
		bucket := buckets[keyword]
		m := a.cfg.CalculateMetrics(bucket, now)
		if m.AggregateScore < a.cfg.MinScore || m.AggregateComments < a.cfg.MinComments {
			continue
		}
		trends = append(trends, a.newTrend(keyword, bucket, m))
	}

	a.sortTrends(trends)

	if len(a.contributors) > 0 {
		n := min(a.cfg.EnrichTop, len(trends))
		for i := 0; i < n; i++ {
			for _, c := range a.contributors {
				if err := c.Contribute(ctx, &trends[i]); err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					a.log.WithError(err).WithFields(logrus.Fields{
						"contributor": c.Name(),
						"keyword":     trends[i].Keyword,
					}).Warn("Score contributor failed, keeping previous metrics")
				}
			}
			trends[i].Score = a.cfg.ScoreTrend(trends[i].Keyword, trends[i].Posts, trends[i].Metrics)
		}
		a.sortTrends(trends)
	}

	return trends, nil
}

func (a *Analyzer) sortTrends(trends []models.Trend) {
	sort.SliceStable(trends, func(i, j int) bool {
		if trends[i].Score != trends[j].Score {
			return trends[i].Score > trends[j].Score
		}
		return trends[i].Keyword < trends[j].Keyword
	})
}

func (a *Analyzer) newTrend(keyword string, posts []*models.Post, m models.TrendMetric) models.Trend {
	t := models.Trend{
		Keyword:    keyword,
		Score:      a.cfg.ScoreTrend(keyword, posts, m),
		Metrics:    m,
		Posts:      posts,
		Subreddits: distinctSubreddits(posts),
		Examples: models.TrendExamples{
			Posts:    make([]string, 0, a.cfg.MaxExamples),
			Comments: []string{},
		},
	}

	for i, p := range posts {
		created := p.Created()
		if i == 0 || created.Before(t.FirstSeen) {
			t.FirstSeen = created
		}
		if i == 0 || created.After(t.LastSeen) {
			t.LastSeen = created
		}
	}

	for _, p := range topPosts(posts, a.cfg.MaxExamples) {
		t.Examples.Posts = append(t.Examples.Posts, truncateRunes(p.Title, maxExampleLength))
	}

	return t
}
