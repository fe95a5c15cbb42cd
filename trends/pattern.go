package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/cache"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

const maxExampleLength = 280

// PatternStage is the problem-to-solution stage a text sits at
type PatternStage string

const (
	StageNone        PatternStage = "none"
	StageFrustration PatternStage = "frustration"
	StageRequest     PatternStage = "request"
	StageIdea        PatternStage = "idea"
	StageMixed       PatternStage = "mixed"
)

// PatternAnalysis is the outcome of matching a text against the pattern phrase lists
type PatternAnalysis struct {
	HasFrustration bool         `json:"has_frustration"`
	HasRequest     bool         `json:"has_request"`
	HasIdea        bool         `json:"has_idea"`
	Stage          PatternStage `json:"stage"`
}

// Score is the share of the three categories the text matched
func (p PatternAnalysis) Score() float64 {
	return float64(p.matched()) / 3
}

func (p PatternAnalysis) matched() int {
	n := 0
	for _, hit := range []bool{p.HasFrustration, p.HasRequest, p.HasIdea} {
		if hit {
			n++
		}
	}
	return n
}

// AnalyzePattern classifies text by the frustration, request and idea phrase lists
func (c *Config) AnalyzePattern(text string) PatternAnalysis {
	text = strings.ToLower(text)
	p := PatternAnalysis{
		HasFrustration: containsAny(text, c.FrustrationPhrases),
		HasRequest:     containsAny(text, c.RequestPhrases),
		HasIdea:        containsAny(text, c.IdeaPhrases),
	}

	switch p.matched() {
	case 0:
		p.Stage = StageNone
	case 1:
		switch {
		case p.HasFrustration:
			p.Stage = StageFrustration
		case p.HasRequest:
			p.Stage = StageRequest
		default:
			p.Stage = StageIdea
		}
	default:
		p.Stage = StageMixed
	}
	return p
}

// CommentSource fetches the comments of a post
type CommentSource interface {
	FetchComments(ctx context.Context, postID, subreddit string) ([]models.Comment, error)
}

// PatternContributor scores a trend by how strongly its posts and their top
// comments follow the frustration, request and idea patterns
type PatternContributor struct {
	comments CommentSource
	limiter  *ratelimit.Limiter
	cache    *cache.Cache[[]models.Comment]
	cfg      *Config
	log      *logrus.Logger
}

// NewPatternContributor creates a pattern contributor; limiter may be nil
func NewPatternContributor(comments CommentSource, limiter *ratelimit.Limiter, cfg *Config, log *logrus.Logger) *PatternContributor {
	return &PatternContributor{
		comments: comments,
		limiter:  limiter,
		cache:    cache.New[[]models.Comment](cache.DefaultTTL),
		cfg:      cfg,
		log:      log,
	}
}

func (p *PatternContributor) Name() string { return "pattern" }

// Contribute sets PatternScore to the mean pattern score of the trend's post texts
// and the comments of its top posts, and records the best comments as examples.
// It fails without touching the trend when every comment fetch failed.
func (p *PatternContributor) Contribute(ctx context.Context, trend *models.Trend) error {
	top := topPosts(trend.Posts, p.cfg.CommentPostsPerTrend)

	var comments []models.Comment
	var errs []error
	for _, post := range top {
		fetched, err := p.commentsFor(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		comments = append(comments, fetched...)
	}
	if len(top) > 0 && len(errs) == len(top) {
		return fmt.Errorf("fetching comments for %q: %w", trend.Keyword, errors.Join(errs...))
	}

	texts := make([]string, 0, len(trend.Posts)+len(comments))
	for _, post := range trend.Posts {
		texts = append(texts, post.Text())
	}
	for _, c := range comments {
		texts = append(texts, c.Body)
	}
	if len(texts) == 0 {
		return nil
	}

	total := 0.0
	for _, text := range texts {
		total += p.cfg.AnalyzePattern(text).Score()
	}
	trend.Metrics.PatternScore = total / float64(len(texts))
	trend.Examples.Comments = commentExamples(comments, p.cfg.MaxExamples)

	p.log.WithFields(logrus.Fields{
		"keyword":       trend.Keyword,
		"texts":         len(texts),
		"pattern_score": trend.Metrics.PatternScore,
	}).Debug("Scored trend patterns")

	return nil
}

func (p *PatternContributor) commentsFor(ctx context.Context, post *models.Post) ([]models.Comment, error) {
	if cached, ok := p.cache.Get(post.ID); ok {
		return cached, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	comments, err := p.comments.FetchComments(ctx, post.ID, post.Subreddit)
	if err != nil {
		if p.limiter != nil && errors.Is(err, ratelimit.ErrRateLimited) {
			p.limiter.RecordRateLimited()
		}
		return nil, err
	}
	if p.limiter != nil {
		p.limiter.RecordSuccess()
	}

	p.cache.Set(post.ID, comments)
	return comments, nil
}

// topPosts returns up to n posts with the highest scores
func topPosts(posts []*models.Post, n int) []*models.Post {
	sorted := append([]*models.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func commentExamples(comments []models.Comment, n int) []string {
	sorted := append([]models.Comment(nil), comments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	examples := make([]string, 0, min(n, len(sorted)))
	for _, c := range sorted {
		if len(examples) == n {
			break
		}
		examples = append(examples, truncateRunes(strings.TrimSpace(c.Body), maxExampleLength))
	}
	return examples
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
