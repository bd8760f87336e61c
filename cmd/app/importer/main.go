// Command importer downloads the datamining item and recipe sheets and stores
// them in Postgres for the server to load at startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duisenbekovayan/xivprofit/internal/catalog"
	"github.com/duisenbekovayan/xivprofit/internal/config"
	"github.com/duisenbekovayan/xivprofit/internal/logging"
	"github.com/duisenbekovayan/xivprofit/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("import failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dsn := cfg.PGDSN()
	if dsn == "" {
		return errors.New("XIVP_PG_HOST is not set")
	}

	pg, err := storage.New(dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	items, recipes, err := catalog.Download(ctx, &http.Client{Timeout: 2 * time.Minute}, cfg.DataminingURL, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := pg.ReplaceCatalog(ctx, items, recipes); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	logger.Info("catalog imported", "items", len(items), "recipes", len(recipes), "elapsed", time.Since(start))
	return nil
}
