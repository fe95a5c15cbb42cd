// Package ai scores trends with an OpenAI chat model.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/cache"
	"github.com/brettboylen/trend-whisperer/models"
	"github.com/brettboylen/trend-whisperer/ratelimit"
)

const (
	defaultModel             = "gpt-4o-mini"
	defaultRequestsPerMinute = 10
	defaultMinDelay          = 3 * time.Second
	defaultTimeout           = 30 * time.Second
	maxTitles                = 5
	maxTokens                = 200
)

const systemPrompt = `You analyze Reddit discussions for product opportunities.
Given a keyword and post titles that mention it, rate on a scale from 0 to 1:
- pattern_score: how clearly the posts move from frustration to requests to proposed solutions
- uniqueness_score: how novel the underlying problem is
- monetization_potential: how likely people would pay for a solution
Answer with a JSON object holding exactly these three numbers.`

var assessmentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"pattern_score":          map[string]any{"type": "number"},
		"uniqueness_score":       map[string]any{"type": "number"},
		"monetization_potential": map[string]any{"type": "number"},
	},
	"required":             []string{"pattern_score", "uniqueness_score", "monetization_potential"},
	"additionalProperties": false,
}

// Config holds the OpenAI connection settings
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	MinDelay          time.Duration
}

// Assessment is the model's rating of a trend
type Assessment struct {
	PatternScore          float64 `json:"pattern_score"`
	UniquenessScore       float64 `json:"uniqueness_score"`
	MonetizationPotential float64 `json:"monetization_potential"`
}

// Contributor sets a trend's pattern, uniqueness and monetization metrics from
// the model's assessment. Assessments are cached per keyword and titles.
type Contributor struct {
	client  openai.Client
	model   string
	timeout time.Duration
	limiter *ratelimit.Limiter
	cache   *cache.Cache[Assessment]
	log     *logrus.Logger
}

// New creates an OpenAI contributor
func New(cfg Config, log *logrus.Logger) *Contributor {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}

	return &Contributor{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: ratelimit.New(ratelimit.Options{
			MaxRequests:   cfg.RequestsPerMinute,
			Window:        time.Minute,
			MaxConcurrent: 1,
			MinDelay:      cfg.MinDelay,
		}, log),
		cache: cache.New[Assessment](cache.DefaultTTL),
		log:   log,
	}
}

func (c *Contributor) Name() string { return "openai" }

// Contribute rates the trend and overwrites its extension-point metrics
func (c *Contributor) Contribute(ctx context.Context, trend *models.Trend) error {
	titles := exampleTitles(trend)
	key := trend.Keyword + "\x00" + strings.Join(titles, "\x00")

	assessment, ok := c.cache.Get(key)
	if !ok {
		var err error
		assessment, err = c.assess(ctx, trend.Keyword, titles)
		if err != nil {
			return err
		}
		c.cache.Set(key, assessment)
	}

	trend.Metrics.PatternScore = assessment.PatternScore
	trend.Metrics.UniquenessScore = assessment.UniquenessScore
	trend.Metrics.MonetizationPotential = assessment.MonetizationPotential
	return nil
}

func (c *Contributor) assess(ctx context.Context, keyword string, titles []string) (Assessment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Assessment{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Keyword: %s\nPost titles:\n", keyword)
	for _, title := range titles {
		fmt.Fprintf(&prompt, "- %s\n", title)
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "trend_assessment",
					Schema: assessmentSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			c.limiter.RecordRateLimited()
			return Assessment{}, fmt.Errorf("openai assessment of %q: %w", keyword, ratelimit.ErrRateLimited)
		}
		return Assessment{}, fmt.Errorf("openai assessment of %q: %w", keyword, err)
	}
	c.limiter.RecordSuccess()

	if len(resp.Choices) == 0 {
		return Assessment{}, fmt.Errorf("openai assessment of %q: no choices in response", keyword)
	}

	var assessment Assessment
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &assessment); err != nil {
		return Assessment{}, fmt.Errorf("openai assessment of %q: unmarshal response: %w", keyword, err)
	}
	assessment.PatternScore = clamp(assessment.PatternScore)
	assessment.UniquenessScore = clamp(assessment.UniquenessScore)
	assessment.MonetizationPotential = clamp(assessment.MonetizationPotential)

	c.log.WithFields(logrus.Fields{
		"keyword":           keyword,
		"model":             c.model,
		"duration_ms":       time.Since(start).Milliseconds(),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("Assessed trend")

	return assessment, nil
}

func exampleTitles(trend *models.Trend) []string {
	if len(trend.Examples.Posts) > 0 {
		return trend.Examples.Posts
	}

	titles := make([]string, 0, maxTitles)
	for _, p := range trend.Posts {
		if len(titles) == maxTitles {
			break
		}
		titles = append(titles, p.Title)
	}
	return titles
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
