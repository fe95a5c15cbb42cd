package models

import (
	"time"
)

// Post represents a Reddit post
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SelfText    string    `json:"selftext"`
	Author      string    `json:"author"`
	Subreddit   string    `json:"subreddit"`
	URL         string    `json:"url"`
	Permalink   string    `json:"permalink"`
	CreatedUTC  float64   `json:"created_utc"`
	CreatedAt   time.Time `json:"created_at"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
}

// Text returns the title and body joined by a single space
func (p *Post) Text() string {
	return p.Title + " " + p.SelfText
}

// Created returns CreatedAt, falling back to CreatedUTC when it is unset
func (p *Post) Created() time.Time {
	if !p.CreatedAt.IsZero() {
		return p.CreatedAt
	}
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// Comment represents a Reddit comment
type Comment struct {
	ID         string    `json:"id"`
	Body       string    `json:"body"`
	Author     string    `json:"author"`
	Permalink  string    `json:"permalink"`
	CreatedUTC float64   `json:"created_utc"`
	CreatedAt  time.Time `json:"created_at"`
	Score      int       `json:"score"`
}

// SubredditInfo is a subreddit search result
type SubredditInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	Over18      bool   `json:"over18"`
}

// TrendMetric holds the heuristic metrics derived from a keyword's posts
type TrendMetric struct {
	AggregateScore        int     `json:"aggregate_score"`
	AggregateComments     int     `json:"aggregate_comments"`
	GrowthRate            float64 `json:"growth_rate"`
	Velocity              float64 `json:"velocity"`
	CrossPostingScore     float64 `json:"cross_posting_score"`
	ProblemSolvingScore   float64 `json:"problem_solving_score"`
	PatternScore          float64 `json:"pattern_score"`
	UniquenessScore       float64 `json:"uniqueness_score"`
	MonetizationPotential float64 `json:"monetization_potential"`
}

// TrendExamples holds short text samples shown on a trend card
type TrendExamples struct {
	Posts    []string `json:"posts"`
	Comments []string `json:"comments"`
}

// Trend is a keyword plus the posts and metrics supporting it
type Trend struct {
	Keyword    string        `json:"keyword"`
	Score      float64       `json:"score"`
	Metrics    TrendMetric   `json:"metrics"`
	Posts      []*Post       `json:"posts"`
	Subreddits []string      `json:"subreddits"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
	Examples   TrendExamples `json:"examples"`
}

// Analysis is the report of a single analysis run
type Analysis struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Subreddits       []string  `json:"subreddits"`
	FailedSubreddits []string  `json:"failed_subreddits"`
	PostCount        int       `json:"post_count"`
	Trends           []Trend   `json:"trends"`

	// Posts holds every fetched post; it is archived, not served
	Posts []Post `json:"-"`
}

// Statistics holds statistics about the analysis runner
type Statistics struct {
	TotalRuns     int            `json:"total_runs"`
	FailedRuns    int            `json:"failed_runs"`
	ArchivedPosts int            `json:"archived_posts"`
	TopSubreddits map[string]int `json:"top_subreddits"`
	TopPosts      []Post         `json:"top_posts_by_score"`
	LastError     string         `json:"last_error,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	LastUpdated   time.Time      `json:"last_updated"`
}
