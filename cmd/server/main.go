// Command server runs the catalogue search HTTP API and, when Kafka is
// enabled, the catalogue.published consumer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/catalogue-search/internal/app"
	"github.com/utafrali/catalogue-search/internal/config"
	"github.com/utafrali/catalogue-search/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("catalogue search service exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("catalogue search service starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("engine", cfg.SearchEngine),
		slog.String("index", cfg.Index),
	)
	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("catalogue search service stopped")
	return nil
}
