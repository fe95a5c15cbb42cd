// Command proxy serves the authenticated Reddit proxy used by the trend fetcher.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/api"
	"github.com/brettboylen/trend-whisperer/proxy"
	"github.com/brettboylen/trend-whisperer/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := utils.SetupLogger(*logLevel)
	log.Info("Starting Reddit proxy")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := config.RequireRedditCredentials(); err != nil {
		log.WithError(err).Fatal("Invalid proxy configuration")
	}

	redditAPI := api.NewRedditAPI(
		config.Reddit.ClientID,
		config.Reddit.ClientSecret,
		config.Reddit.UserAgent,
		config.Reddit.MaxRequestsPerMinute,
		config.Proxy.Timeout(),
		log,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	proxy.NewHandler(redditAPI, config.App.Name+" proxy", config.App.Version, log).Register(e)

	go func() {
		log.WithFields(logrus.Fields{
			"app":                     config.App.Name,
			"version":                 config.App.Version,
			"port":                    config.Proxy.Port,
			"max_requests_per_minute": config.Reddit.MaxRequestsPerMinute,
		}).Info("Starting proxy server")
		if err := e.Start(":" + strconv.Itoa(config.Proxy.Port)); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Proxy server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Proxy server shutdown failed")
	}
	log.Info("Reddit proxy stopped")
}
