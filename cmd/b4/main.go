package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mmcdole/b4/internal/api"
	"github.com/mmcdole/b4/internal/bundle"
	"github.com/mmcdole/b4/internal/config"
	"github.com/mmcdole/b4/internal/log"
	"github.com/mmcdole/b4/internal/metrics"
	"github.com/mmcdole/b4/internal/ratelimit"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if showVersion {
		fmt.Printf("b4 %s\n", Version)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("starting b4", "version", Version)

	gin.SetMode(cfg.Server.Mode)
	m := metrics.New()

	svc, err := bundle.New(bundle.Options{
		BundleStoreURL: cfg.Stores.BundleURL,
		BookStoreURL:   cfg.Stores.BookURL,
		HTTPClient:     &http.Client{Timeout: cfg.Stores.Timeout},
		Logger:         logger,
		Metrics:        m,
	})
	if err != nil {
		return fmt.Errorf("failed to create bundle service: %w", err)
	}

	server := api.NewServer(svc, api.Options{
		Addr:    cfg.Server.Addr,
		Limiter: ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL),
		Metrics: m,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shut down")
	return nil
}
