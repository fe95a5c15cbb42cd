package trends

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/brettboylen/trend-whisperer/models"
)

// CalculateMetrics derives a keyword's metrics from its posts as seen at now.
// Score, comments, growth and velocity only count posts younger than TimeWindow;
// cross-posting and problem-solving look at every post. The extension-point
// metrics start at their configured defaults.
func (c *Config) CalculateMetrics(posts []*models.Post, now time.Time) models.TrendMetric {
	m := models.TrendMetric{
		PatternScore:          c.Defaults.Pattern,
		UniquenessScore:       c.Defaults.Uniqueness,
		MonetizationPotential: c.Defaults.Monetization,
	}
	if len(posts) == 0 {
		return m
	}

	minAgeHours := c.MinPostAge.Hours()
	recent := 0
	problemSolving := 0.0

	for _, p := range posts {
		text := strings.ToLower(p.Text())
		if containsAny(text, c.ProblemPhrases) {
			problemSolving += 0.5
		}
		if containsAny(text, c.SolutionPhrases) {
			problemSolving += 0.5
		}

		age := now.Sub(p.Created())
		if age >= c.TimeWindow {
			continue
		}

		recent++
		m.AggregateScore += p.Score
		m.AggregateComments += p.NumComments
		m.Velocity += float64(p.Score) / math.Max(age.Hours(), minAgeHours)
	}

	if hours := c.TimeWindow.Hours(); hours > 0 {
		m.GrowthRate = float64(recent) / hours
	}
	if len(c.TrendingSubreddits) > 0 {
		m.CrossPostingScore = float64(len(distinctSubreddits(posts))) / float64(len(c.TrendingSubreddits))
	}
	m.ProblemSolvingScore = problemSolving / float64(len(posts))

	return m
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// distinctSubreddits returns the sorted subreddit names of posts, compared
// case-insensitively and spelled as first seen
func distinctSubreddits(posts []*models.Post) []string {
	seen := make(map[string]struct{}, len(posts))
	names := make([]string, 0)
	for _, p := range posts {
		key := strings.ToLower(p.Subreddit)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, p.Subreddit)
	}
	sort.Strings(names)
	return names
}
