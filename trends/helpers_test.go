package trends

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newPost(id, subreddit, title string, score, comments int, age time.Duration) models.Post {
	created := testNow.Add(-age)
	return models.Post{
		ID:          id,
		Title:       title,
		Subreddit:   subreddit,
		Author:      "user_" + id,
		CreatedUTC:  float64(created.Unix()),
		CreatedAt:   created,
		Score:       score,
		NumComments: comments,
	}
}

func pointers(posts []models.Post) []*models.Post {
	out := make([]*models.Post, len(posts))
	for i := range posts {
		out[i] = &posts[i]
	}
	return out
}

// automationPosts are three recent r/startups posts scoring 290 with 45 comments
func automationPosts() []models.Post {
	return []models.Post{
		newPost("a1", "startups", "Automation for invoices, I built a tool", 150, 30, time.Hour),
		newPost("a2", "startups", "How to pick an automation stack", 80, 10, 2*time.Hour),
		newPost("a3", "startups", "automation saves time", 60, 5, 10*time.Hour),
	}
}

func fixturePosts() []models.Post {
	return []models.Post{
		newPost("p1", "startups", "Automation for invoices, I built a tool", 150, 30, time.Hour),
		newPost("p2", "startups", "How to pick an automation stack", 80, 10, 2*time.Hour),
		newPost("p3", "SaaS", "automation saves time for founders", 60, 5, 10*time.Hour),
		newPost("p4", "SaaS", "Pricing pages that convert founders", 400, 90, 3*time.Hour),
		newPost("p5", "webdev", "Founders keep asking about pricing", 220, 40, 5*time.Hour),
		newPost("p6", "webdev", "pricing experiments for founders", 30, 2, 20*time.Hour),
		newPost("p7", "programming", "Rust compile times again", 500, 120, 4*time.Hour),
		newPost("p8", "programming", "rust async is hard", 120, 60, 30*time.Hour),
		newPost("p9", "rust", "Why rust? tired of segfaults", 90, 15, 50*time.Hour),
		newPost("p10", "rust", "old rust news", 9000, 900, 100*time.Hour),
	}
}

type fakeSource struct {
	mu          sync.Mutex
	posts       map[string][]models.Post
	errs        map[string]error
	rateLimited map[string]int
	calls       map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		posts:       make(map[string][]models.Post),
		errs:        make(map[string]error),
		rateLimited: make(map[string]int),
		calls:       make(map[string]int),
	}
}

func (f *fakeSource) FetchPosts(_ context.Context, subreddit string, _ int) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[subreddit]++
	if f.rateLimited[subreddit] > 0 {
		f.rateLimited[subreddit]--
		return []models.Post{}, ratelimit.ErrRateLimited
	}
	if err := f.errs[subreddit]; err != nil {
		return []models.Post{}, err
	}
	return append([]models.Post(nil), f.posts[subreddit]...), nil
}

func (f *fakeSource) callCount(subreddit string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[subreddit]
}

type fakeComments struct {
	mu       sync.Mutex
	comments map[string][]models.Comment
	err      error
	calls    int
}

func (f *fakeComments) FetchComments(_ context.Context, postID, _ string) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return []models.Comment{}, f.err
	}
	return f.comments[postID], nil
}
