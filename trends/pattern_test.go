package trends

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/trend-whisperer/models"
)

func TestAnalyzePattern(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		text  string
		stage PatternStage
		score float64
	}{
		{"Shipping a landing page today", StageNone, 0},
		{"So tired of manual invoicing", StageFrustration, 1.0 / 3},
		{"Looking for a CRM that does not suck", StageRequest, 1.0 / 3},
		{"I built a small CLI for this", StageIdea, 1.0 / 3},
		{"Frustrated with spreadsheets, any suggestions?", StageMixed, 2.0 / 3},
		{"Sick of it. Need help. So I built a fix", StageMixed, 1},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			p := cfg.AnalyzePattern(tc.text)
			assert.Equal(t, tc.stage, p.Stage)
			assert.InDelta(t, tc.score, p.Score(), 1e-12)
		})
	}
}

func patternTrend() *models.Trend {
	posts := []models.Post{
		newPost("p1", "startups", "So tired of manual invoicing", 300, 40, time.Hour),
		newPost("p2", "startups", "invoicing at scale", 10, 1, time.Hour),
	}
	return &models.Trend{
		Keyword: "invoicing",
		Posts:   pointers(posts),
		Metrics: models.TrendMetric{PatternScore: 0.5},
		Examples: models.TrendExamples{
			Comments: []string{},
		},
	}
}

func TestPatternContributorScoresPostsAndComments(t *testing.T) {
	cfg := DefaultConfig()
	source := &fakeComments{
		comments: map[string][]models.Comment{
			"p1": {
				{ID: "c1", Body: "Frustrated with this too, any suggestions?", Score: 10},
				{ID: "c2", Body: "Nice", Score: 40},
			},
			"p2": {
				{ID: "c3", Body: "I built a tool for it", Score: 25},
			},
		},
	}

	c := NewPatternContributor(source, nil, &cfg, testLogger())
	trend := patternTrend()

	require.NoError(t, c.Contribute(context.Background(), trend))

	// texts: p1 1/3, p2 0, c1 2/3, c2 0, c3 1/3
	assert.InDelta(t, (1.0/3+2.0/3+1.0/3)/5, trend.Metrics.PatternScore, 1e-12)
	assert.Equal(t, []string{"Nice", "I built a tool for it", "Frustrated with this too, any suggestions?"}, trend.Examples.Comments)
	assert.Equal(t, 2, source.calls)
}

func TestPatternContributorCachesComments(t *testing.T) {
	cfg := DefaultConfig()
	source := &fakeComments{comments: map[string][]models.Comment{}}
	c := NewPatternContributor(source, nil, &cfg, testLogger())

	require.NoError(t, c.Contribute(context.Background(), patternTrend()))
	require.NoError(t, c.Contribute(context.Background(), patternTrend()))

	assert.Equal(t, 2, source.calls)
}

func TestPatternContributorLeavesTrendOnFailure(t *testing.T) {
	cfg := DefaultConfig()
	source := &fakeComments{err: errors.New("proxy down")}
	c := NewPatternContributor(source, nil, &cfg, testLogger())

	trend := patternTrend()
	err := c.Contribute(context.Background(), trend)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy down")
	assert.Equal(t, 0.5, trend.Metrics.PatternScore)
	assert.Empty(t, trend.Examples.Comments)
}

func TestPatternContributorLimitsPosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommentPostsPerTrend = 1
	source := &fakeComments{comments: map[string][]models.Comment{}}
	c := NewPatternContributor(source, nil, &cfg, testLogger())

	require.NoError(t, c.Contribute(context.Background(), patternTrend()))
	assert.Equal(t, 1, source.calls)
}

func TestCommentExamplesTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	examples := commentExamples([]models.Comment{{Body: long, Score: 1}}, 3)

	require.Len(t, examples, 1)
	assert.Equal(t, strings.Repeat("a", maxExampleLength)+"...", examples[0])
}

func TestConstantContributor(t *testing.T) {
	c := NewConstantContributor(MetricDefaults{Pattern: 0.1, Uniqueness: 0.2, Monetization: 0.3})
	trend := patternTrend()

	require.NoError(t, c.Contribute(context.Background(), trend))
	assert.Equal(t, "constant", c.Name())
	assert.Equal(t, 0.1, trend.Metrics.PatternScore)
	assert.Equal(t, 0.2, trend.Metrics.UniquenessScore)
	assert.Equal(t, 0.3, trend.Metrics.MonetizationPotential)
}
