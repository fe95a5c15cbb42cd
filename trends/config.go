package trends

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds the tunable parameters of the trend pipeline. DefaultConfig returns
// the stock values; LoadConfigFile overlays a YAML file on top of them.
type Config struct {
	TrendingSubreddits []string `yaml:"trending_subreddits" validate:"required,min=1,dive,required"`
	DiscoveryKeywords  []string `yaml:"discovery_keywords"`
	ExcludedSubreddits []string `yaml:"excluded_subreddits"`
	ExcludedNameParts  []string `yaml:"excluded_name_parts"`
	MinSubscribers     int      `yaml:"min_subscribers" validate:"gte=0"`
	DiscoveryLimit     int      `yaml:"discovery_limit" validate:"min=1,max=100"`

	PostLimit int `yaml:"post_limit" validate:"min=1,max=100"`
	BatchSize int `yaml:"batch_size" validate:"min=1"`

	MinWordLength    int      `yaml:"min_word_length" validate:"min=1"`
	StopWords        []string `yaml:"stop_words"`
	MinTermFrequency int      `yaml:"min_term_frequency" validate:"min=1"`
	MinScore         int      `yaml:"min_score" validate:"gte=0"`
	MinComments      int      `yaml:"min_comments" validate:"gte=0"`

	// TimeWindow bounds which posts count as recent; MinPostAge floors the age
	// used as the velocity denominator.
	TimeWindow time.Duration `yaml:"time_window" validate:"gt=0"`
	MinPostAge time.Duration `yaml:"min_post_age" validate:"gt=0"`

	ProblemPhrases     []string `yaml:"problem_phrases"`
	SolutionPhrases    []string `yaml:"solution_phrases"`
	FrustrationPhrases []string `yaml:"frustration_phrases"`
	RequestPhrases     []string `yaml:"request_phrases"`
	IdeaPhrases        []string `yaml:"idea_phrases"`

	Defaults MetricDefaults `yaml:"defaults"`
	Weights  Weights        `yaml:"weights"`

	EnrichComments       bool `yaml:"enrich_comments"`
	EnrichTop            int  `yaml:"enrich_top" validate:"gte=0"`
	CommentPostsPerTrend int  `yaml:"comment_posts_per_trend" validate:"gte=0"`
	MaxExamples          int  `yaml:"max_examples" validate:"gte=0"`
}

// MetricDefaults are the values of the extension-point metrics when no
// contributor overrides them
type MetricDefaults struct {
	Pattern      float64 `yaml:"pattern" validate:"gte=0,lte=1"`
	Uniqueness   float64 `yaml:"uniqueness" validate:"gte=0,lte=1"`
	Monetization float64 `yaml:"monetization" validate:"gte=0,lte=1"`
}

// Weights are the coefficients of the ranking score
type Weights struct {
	Score             float64 `yaml:"score"`
	Comments          float64 `yaml:"comments"`
	Growth            float64 `yaml:"growth"`
	Velocity          float64 `yaml:"velocity"`
	Pattern           float64 `yaml:"pattern"`
	ProblemSolving    float64 `yaml:"problem_solving"`
	SubredditBonus    float64 `yaml:"subreddit_bonus"`
	UnusualMultiplier float64 `yaml:"unusual_multiplier" validate:"gt=0"`
	UnusualLength     int     `yaml:"unusual_length" validate:"min=1"`
}

// DefaultConfig returns the stock pipeline configuration
func DefaultConfig() Config {
	return Config{
		TrendingSubreddits: []string{
			"technology", "programming", "startups", "webdev", "artificial",
			"MachineLearning", "gadgets", "appdev", "Entrepreneur", "SaaS",
			"SideProject", "smallbusiness", "productivity", "nocode",
		},
		DiscoveryKeywords: []string{
			"app ideas", "startup", "saas", "side project", "productivity",
			"automation", "no code", "indie hackers",
		},
		ExcludedSubreddits: []string{
			"funny", "pics", "gaming", "aww", "memes", "videos", "movies", "music",
			"AskReddit", "worldnews", "news", "politics", "sports", "todayilearned",
		},
		ExcludedNameParts: []string{"bot", "meme", "circle"},
		MinSubscribers:    1000,
		DiscoveryLimit:    25,

		PostLimit: 100,
		BatchSize: 3,

		MinWordLength:    4,
		StopWords: []string{
			"the", "be", "to", "of", "and", "a", "in", "that", "have", "i", "it", "for",
			"not", "on", "with", "he", "as", "you", "do", "at", "this", "but", "his", "by",
			"from", "they", "we", "say", "her", "she", "or", "an", "will", "my", "one",
			"all", "would", "there", "their", "what", "so", "up", "out", "if", "about",
			"who", "get", "which", "go", "me", "are", "was",
		},
		MinTermFrequency: 3,
		MinScore:         100,
		MinComments:      25,

		TimeWindow: 72 * time.Hour,
		MinPostAge: 5 * time.Minute,

		ProblemPhrases: []string{
			"how do i", "how to", "struggling with", "frustrated", "problem with",
			"issue with", "looking for", "need help", "is there a", "any suggestions",
			"tired of", "wish there was", "pain point", "alternative to",
		},
		SolutionPhrases: []string{
			"i built", "i made", "i created", "launched", "solution", "introducing",
			"tool that", "app that", "open source", "helps you", "solves",
		},
		FrustrationPhrases: []string{
			"frustrated with", "hate when", "tired of", "annoying", "difficult to",
			"wish there was", "pain point", "struggle with", "problems with",
			"sick of", "fed up with", "cant stand",
		},
		RequestPhrases: []string{
			"looking for", "need help", "any suggestions", "recommend", "how do you",
			"what do you use", "is there a tool", "alternative to", "solution for",
			"best way to", "how to handle", "advice needed",
		},
		IdeaPhrases: []string{
			"i built", "created a", "launching", "working on", "developed a",
			"made a tool", "solution to", "helps with", "solves the problem",
			"new approach", "innovative way", "better way to",
		},

		Defaults: MetricDefaults{
			Pattern:      0.5,
			Uniqueness:   0.8,
			Monetization: 0.7,
		},
		Weights: Weights{
			Score:             0.2,
			Comments:          0.15,
			Growth:            0.15,
			Velocity:          0.15,
			Pattern:           0.2,
			ProblemSolving:    0.15,
			SubredditBonus:    0.1,
			UnusualMultiplier: 1.2,
			UnusualLength:     8,
		},

		EnrichComments:       false,
		EnrichTop:            10,
		CommentPostsPerTrend: 3,
		MaxExamples:          3,
	}
}

// LoadConfigFile reads a YAML file over DefaultConfig. An empty path returns the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read analysis config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse analysis config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// normalize lowercases the word and phrase lists, which are matched against lowercased text
func (c *Config) normalize() {
	for _, list := range [][]string{
		c.StopWords,
		c.ProblemPhrases,
		c.SolutionPhrases,
		c.FrustrationPhrases,
		c.RequestPhrases,
		c.IdeaPhrases,
	} {
		for i := range list {
			list[i] = strings.ToLower(strings.TrimSpace(list[i]))
		}
	}
}

// Validate checks the configuration for values the pipeline cannot work with
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid analysis config: %s", strings.Join(msgs, "; "))
}
