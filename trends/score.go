package trends

import (
	"unicode"
	"unicode/utf8"

	"github.com/brettboylen/trend-whisperer/models"
)

// ScoreTrend combines a keyword's metrics into its ranking score. The weighted sum
// is scaled by a bonus per distinct subreddit and, for unusual keywords, by
// Weights.UnusualMultiplier.
func (c *Config) ScoreTrend(keyword string, posts []*models.Post, m models.TrendMetric) float64 {
	w := c.Weights

	score := w.Score*float64(m.AggregateScore) +
		w.Comments*float64(m.AggregateComments) +
		w.Growth*m.GrowthRate +
		w.Velocity*m.Velocity +
		w.Pattern*m.PatternScore +
		w.ProblemSolving*m.ProblemSolvingScore

	score *= 1 + w.SubredditBonus*float64(len(distinctSubreddits(posts)))

	if isUnusual(keyword, w.UnusualLength) {
		score *= w.UnusualMultiplier
	}

	return score
}

// isUnusual reports whether keyword is longer than maxLen or holds anything but letters
func isUnusual(keyword string, maxLen int) bool {
	if utf8.RuneCountInString(keyword) > maxLen {
		return true
	}
	for _, r := range keyword {
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
