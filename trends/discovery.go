package trends

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/cache"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

const discoveryCacheKey = "subreddits:discovered"

// SubredditSearcher searches subreddits by keyword
type SubredditSearcher interface {
	SearchSubreddits(ctx context.Context, query string, limit int) ([]models.SubredditInfo, error)
}

// Discoverer extends the static subreddit seed list with search results
type Discoverer struct {
	searcher SubredditSearcher
	limiter  *ratelimit.Limiter
	cache    *cache.Cache[[]string]
	cfg      *Config
	log      *logrus.Logger
}

// NewDiscoverer creates a discoverer; searcher and limiter may be nil
func NewDiscoverer(searcher SubredditSearcher, limiter *ratelimit.Limiter, cfg *Config, log *logrus.Logger) *Discoverer {
	return &Discoverer{
		searcher: searcher,
		limiter:  limiter,
		cache:    cache.New[[]string](cache.DefaultTTL),
		cfg:      cfg,
		log:      log,
	}
}

// Discover returns the seed subreddits followed by every acceptable search result,
// without duplicates. Search failures are logged and skipped, so at worst the seed
// list comes back. A list built without failures is cached.
func (d *Discoverer) Discover(ctx context.Context) []string {
	if cached, ok := d.cache.Get(discoveryCacheKey); ok {
		return append([]string(nil), cached...)
	}

	names := newNameSet()
	for _, name := range d.cfg.TrendingSubreddits {
		names.add(name)
	}
	if d.searcher == nil {
		return names.list()
	}

	excluded := make(map[string]struct{}, len(d.cfg.ExcludedSubreddits))
	for _, name := range d.cfg.ExcludedSubreddits {
		excluded[strings.ToLower(name)] = struct{}{}
	}

	failed := 0
	for _, keyword := range d.cfg.DiscoveryKeywords {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.log.WithError(err).Warn("Subreddit discovery interrupted")
				return names.list()
			}
		}

		results, err := d.searcher.SearchSubreddits(ctx, keyword, d.cfg.DiscoveryLimit)
		if err != nil {
			failed++
			if d.limiter != nil && errors.Is(err, ratelimit.ErrRateLimited) {
				d.limiter.RecordRateLimited()
			}
			d.log.WithError(err).WithField("keyword", keyword).Warn("Subreddit search failed, skipping keyword")
			continue
		}
		if d.limiter != nil {
			d.limiter.RecordSuccess()
		}

		added := 0
		for _, sub := range results {
			if d.accept(sub, excluded) && names.add(sub.Name) {
				added++
			}
		}
		d.log.WithFields(logrus.Fields{
			"keyword": keyword,
			"results": len(results),
			"added":   added,
		}).Debug("Searched subreddits")
	}

	list := names.list()
	if failed == 0 {
		d.cache.Set(discoveryCacheKey, list)
	}

	d.log.WithFields(logrus.Fields{
		"seeds":      len(d.cfg.TrendingSubreddits),
		"subreddits": len(list),
		"failed":     failed,
	}).Info("Discovered subreddits")

	return append([]string(nil), list...)
}

func (d *Discoverer) accept(sub models.SubredditInfo, excluded map[string]struct{}) bool {
	name := strings.ToLower(sub.Name)
	if len(name) <= 2 || sub.Over18 || sub.Subscribers <= d.cfg.MinSubscribers {
		return false
	}
	if _, ok := excluded[name]; ok {
		return false
	}
	for _, part := range d.cfg.ExcludedNameParts {
		if part != "" && strings.Contains(name, strings.ToLower(part)) {
			return false
		}
	}
	return true
}

// nameSet keeps subreddit names in insertion order, deduplicated case-insensitively
type nameSet struct {
	seen  map[string]struct{}
	names []string
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]struct{})}
}

func (s *nameSet) add(name string) bool {
	name = strings.TrimSpace(name)
	key := strings.ToLower(name)
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.names = append(s.names, name)
	return true
}

func (s *nameSet) list() []string {
	return append([]string(nil), s.names...)
}
