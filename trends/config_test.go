package trends

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/trend-whisperer/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileEmptyPath(t *testing.T) {
	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
trending_subreddits: [golang, rust]
min_score: 50
time_window: 48h
weights:
  score: 0.5
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"golang", "rust"}, cfg.TrendingSubreddits)
	assert.Equal(t, 50, cfg.MinScore)
	assert.Equal(t, 48*time.Hour, cfg.TimeWindow)
	assert.Equal(t, 0.5, cfg.Weights.Score)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.MinComments, cfg.MinComments)
	assert.Equal(t, defaults.Weights.Comments, cfg.Weights.Comments)
	assert.Equal(t, defaults.Weights.UnusualMultiplier, cfg.Weights.UnusualMultiplier)
	assert.Equal(t, defaults.ProblemPhrases, cfg.ProblemPhrases)
}

func TestLoadConfigFileLowercasesPhrases(t *testing.T) {
	path := writeConfigFile(t, `
problem_phrases: ["How To", " Need HELP "]
stop_words: [Really]
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"how to", "need help"}, cfg.ProblemPhrases)
	assert.Equal(t, []string{"really"}, cfg.StopWords)

	post := newPost("1", "startups", "How to ship faster", 10, 1, time.Hour)
	m := cfg.CalculateMetrics([]*models.Post{&post}, testNow)
	assert.Equal(t, 0.5, m.ProblemSolvingScore)
}

func TestLoadConfigFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "invalid yaml",
			content: "min_score: [",
			want:    "failed to parse analysis config",
		},
		{
			name:    "empty seed list",
			content: "trending_subreddits: []",
			want:    "TrendingSubreddits",
		},
		{
			name:    "zero batch size",
			content: "batch_size: 0",
			want:    "BatchSize",
		},
		{
			name:    "default out of range",
			content: "defaults:\n  pattern: 1.5",
			want:    "Pattern",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfigFile(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read analysis config")
}
