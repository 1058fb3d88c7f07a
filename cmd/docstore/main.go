package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmcdole/b4/internal/config"
	"github.com/mmcdole/b4/internal/log"
	"github.com/mmcdole/b4/internal/store"
)

func main() {
	var (
		configPath string
		memory     bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.BoolVar(&memory, "memory", false, "keep documents in memory only")
	flag.Parse()

	if err := run(configPath, memory); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, memory bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.Mode)

	path := cfg.DocStore.Path
	if memory {
		path = ""
	}
	docs, err := store.NewDocumentStore(path, cfg.DocStore.Databases)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer docs.Close()

	srv := &http.Server{
		Addr:              cfg.DocStore.Addr,
		Handler:           store.NewHandler(docs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docstore listening", "addr", cfg.DocStore.Addr, "path", path, "databases", cfg.DocStore.Databases)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
