package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/trends"
)

var validate = validator.New()

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Reddit   RedditConfig
	Proxy    ProxyConfig
	Analysis AnalysisConfig
	Database DatabaseConfig
	Server   ServerConfig
	OpenAI   OpenAIConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// RedditConfig holds Reddit API configuration; only the proxy needs credentials
type RedditConfig struct {
	ClientID             string
	ClientSecret         string
	UserAgent            string
	MaxRequestsPerMinute int `validate:"min=1"`
}

// ProxyConfig holds the proxy server port and the address the fetcher reaches it at
type ProxyConfig struct {
	Port           int    `validate:"min=1,max=65535"`
	BaseURL        string `validate:"required,url"`
	TimeoutSeconds int    `validate:"min=1"`
}

// AnalysisConfig holds the trend analysis settings read from the environment
type AnalysisConfig struct {
	IntervalSeconds int `validate:"min=1"`
	ConfigPath      string
	Subreddits      []string `validate:"dive,required"`
	EnrichComments  bool
	BatchSize       int `validate:"min=1"`
}

// DatabaseConfig holds database configuration; an empty path disables the archive
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port              int `validate:"min=1,max=65535"`
	RequestsPerMinute int `validate:"min=1"` // per client IP
}

// OpenAIConfig holds the optional AI scoring settings; an empty key disables it
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LoadConfig loads configuration from the environment, after applying the .env
// file at envPath when it exists
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using environment only")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Trend Whisperer"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Reddit: RedditConfig{
			ClientID:             getEnv("REDDIT_CLIENT_ID", ""),
			ClientSecret:         getEnv("REDDIT_CLIENT_SECRET", ""),
			UserAgent:            getEnv("REDDIT_USER_AGENT", ""),
			MaxRequestsPerMinute: getEnvAsInt("REDDIT_MAX_REQUESTS_PER_MINUTE", 100),
		},
		Proxy: ProxyConfig{
			Port:           getEnvAsInt("PROXY_PORT", 3001),
			BaseURL:        getEnv("PROXY_BASE_URL", "http://localhost:3001"),
			TimeoutSeconds: getEnvAsInt("PROXY_TIMEOUT_SECONDS", 10),
		},
		Analysis: AnalysisConfig{
			IntervalSeconds: getEnvAsInt("ANALYSIS_INTERVAL", 900),
			ConfigPath:      getEnv("ANALYSIS_CONFIG_PATH", ""),
			Subreddits:      parseSubreddits(getEnv("TRENDING_SUBREDDITS", "")),
			EnrichComments:  getEnvAsBool("ENRICH_COMMENTS", false),
			BatchSize:       getEnvAsInt("FETCH_BATCH_SIZE", 3),
		},
		Database: DatabaseConfig{
			Path: os.Getenv("DATABASE_PATH"),
		},
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			RequestsPerMinute: getEnvAsInt("SERVER_REQUESTS_PER_MINUTE", 120),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
	}
	if _, set := os.LookupEnv("DATABASE_PATH"); !set {
		config.Database.Path = "./trends.db"
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// Interval returns the analysis interval as a duration
func (c *AnalysisConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout returns the fetcher's per-request timeout
func (c *ProxyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrendConfig builds the pipeline configuration: the YAML file at ConfigPath over
// the defaults, then the environment overrides
func (c *AnalysisConfig) TrendConfig() (trends.Config, error) {
	cfg, err := trends.LoadConfigFile(c.ConfigPath)
	if err != nil {
		return cfg, err
	}

	if len(c.Subreddits) > 0 {
		cfg.TrendingSubreddits = c.Subreddits
	}
	if c.EnrichComments {
		cfg.EnrichComments = true
	}
	cfg.BatchSize = c.BatchSize

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RequireRedditCredentials checks the settings the proxy cannot run without
func (c *Config) RequireRedditCredentials() error {
	if c.Reddit.ClientID == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID environment variable is required")
	}
	if c.Reddit.ClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_SECRET environment variable is required")
	}

	// Reddit rejects requests without a descriptive User-Agent
	if c.Reddit.UserAgent == "" {
		return fmt.Errorf("REDDIT_USER_AGENT environment variable is required")
	}
	return nil
}

// parseSubreddits parses a comma-separated list of subreddits
func parseSubreddits(subredditsStr string) []string {
	parts := strings.Split(subredditsStr, ",")

	subreddits := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			subreddits = append(subreddits, trimmed)
		}
	}

	return subreddits
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}

		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", e.Namespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	// if we are storing the db in a nested directory, create the directory
	if config.Database.Path != "" {
		dbDir := filepath.Dir(config.Database.Path)
		if dbDir != "." && dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	return nil
}
