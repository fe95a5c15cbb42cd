package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/ai"
	"github.com/brettboylen/trend-whisperer/db"
	"github.com/brettboylen/trend-whisperer/fetcher"
	"github.com/brettboylen/trend-whisperer/metrics"
	"github.com/brettboylen/trend-whisperer/ratelimit"
	"github.com/brettboylen/trend-whisperer/stats"
	"github.com/brettboylen/trend-whisperer/trends"
	"github.com/brettboylen/trend-whisperer/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	once := flag.Bool("once", false, "Run a single analysis, print the trends as JSON and exit")
	offline := flag.Bool("offline", false, "Analyze archived posts instead of fetching through the proxy")
	flag.Parse()

	log := utils.SetupLogger(*logLevel)
	log.Info("Starting Trend Whisperer")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	trendConfig, err := config.Analysis.TrendConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load analysis configuration")
	}

	log.WithFields(logrus.Fields{
		"app":             config.App.Name,
		"version":         config.App.Version,
		"subreddits":      trendConfig.TrendingSubreddits,
		"interval":        config.Analysis.Interval().String(),
		"enrich_comments": trendConfig.EnrichComments,
		"proxy":           config.Proxy.BaseURL,
		"server_port":     config.Server.Port,
		"offline":         *offline,
	}).Info("Configuration loaded")

	m := metrics.NewCollector("trendwhisperer")

	var database *db.Database
	if config.Database.Path != "" {
		database, err = db.NewDatabase(config.Database.Path, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer database.Close()
	} else if *offline {
		log.Fatal("Offline mode needs DATABASE_PATH")
	}

	analyzer := newAnalyzer(config, &trendConfig, database, *offline, m, log)

	var archive stats.Archive
	if database != nil && !*offline {
		archive = database
	}
	collector := stats.NewCollector(analyzer, archive, m, config.Analysis.Interval(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		runOnce(ctx, collector, log)
		return
	}

	e := newEchoServer(collector, m, config.Server.RequestsPerMinute, log)
	go startEchoServer(ctx, config.Server.Port, e, log)

	go func() {
		if err := collector.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("Analysis runner stopped unexpectedly")
		}
	}()

	waitForShutdown(cancel, log)
}

// newAnalyzer wires the pipeline: posts come from the proxy, or from the archive
// when offline; comment and AI contributors are added when configured and the
// analyzer falls back to the constant metrics otherwise
func newAnalyzer(config *utils.Config, cfg *trends.Config, database *db.Database, offline bool, m *metrics.Collector, log *logrus.Logger) *trends.Analyzer {
	limiter := ratelimit.New(ratelimit.Options{
		MaxRequests:   config.Reddit.MaxRequestsPerMinute,
		Window:        time.Minute,
		MaxConcurrent: cfg.BatchSize,
		MinDelay:      100 * time.Millisecond,
	}, log)

	if offline {
		return trends.NewAnalyzer(cfg, database, limiter, nil, log)
	}

	client := fetcher.NewClient(fetcher.Config{
		BaseURL: config.Proxy.BaseURL,
		Timeout: config.Proxy.Timeout(),
	}, m, log)
	discoverer := trends.NewDiscoverer(client, limiter, cfg, log)

	var contributors []trends.ScoreContributor
	if cfg.EnrichComments {
		contributors = append(contributors, trends.NewPatternContributor(client, limiter, cfg, log))
	}
	if config.OpenAI.APIKey != "" {
		contributors = append(contributors, ai.New(ai.Config{
			APIKey:  config.OpenAI.APIKey,
			Model:   config.OpenAI.Model,
			BaseURL: config.OpenAI.BaseURL,
		}, log))
	}

	return trends.NewAnalyzer(cfg, client, limiter, discoverer, log, contributors...)
}

// runOnce runs a single analysis and writes the ranked trends to stdout
func runOnce(ctx context.Context, collector *stats.Collector, log *logrus.Logger) {
	if _, err := collector.Refresh(ctx); err != nil {
		log.WithError(err).Fatal("Analysis failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(collector.Latest().Trends); err != nil {
		log.WithError(err).Fatal("Failed to write trends")
	}
}

// waitForShutdown waits for a shutdown signal
func waitForShutdown(cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	cancel()

	time.Sleep(1 * time.Second)
	log.Info("Trend Whisperer stopped")
}
