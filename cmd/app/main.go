package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duisenbekovayan/xivprofit/internal/cache"
	"github.com/duisenbekovayan/xivprofit/internal/catalog"
	"github.com/duisenbekovayan/xivprofit/internal/config"
	"github.com/duisenbekovayan/xivprofit/internal/httpapi"
	"github.com/duisenbekovayan/xivprofit/internal/kafka"
	"github.com/duisenbekovayan/xivprofit/internal/logging"
	"github.com/duisenbekovayan/xivprofit/internal/market"
	"github.com/duisenbekovayan/xivprofit/internal/models"
	"github.com/duisenbekovayan/xivprofit/internal/storage"
	"github.com/duisenbekovayan/xivprofit/internal/universalis"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Catalog
	cat, err := loadCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Error("catalog unavailable", "err", err)
		cancel()
		os.Exit(1)
	}

	// Cache
	listings, cheapest, closeCache := newStores(ctx, cfg, logger)
	defer closeCache()

	src := universalis.New(universalis.Config{
		BaseURL: cfg.UniversalisAPI,
		RPS:     cfg.UniversalisRPS,
		Timeout: cfg.UniversalisTimeout,
	})
	svc := market.NewService(logger.With("component", "market"), src, listings, cheapest, market.Config{
		ListingsTTL: cfg.ListingsTTL,
		CheapestTTL: cfg.CheapestTTL,
	})

	// Kafka consumer, optional
	if cfg.KafkaBroker != "" {
		logger.Info("connecting to kafka", "broker", cfg.KafkaBroker)
		cons := kafka.NewConsumer(kafka.Config{
			Brokers:  []string{cfg.KafkaBroker},
			Topic:    cfg.KafkaTopic,
			GroupID:  cfg.KafkaGroup,
			DLQTopic: cfg.KafkaDLQ,
		}, svc, logger)
		go func() {
			if err := cons.Run(ctx); err != nil {
				logger.Error("consumer stopped", "err", err)
			}
		}()
		defer func() { _ = cons.Close() }()
	}

	// HTTP
	api := httpapi.New(cfg.HTTPAddr(), svc, cat, logger, httpapi.Options{WebDir: cfg.WebDir})
	errc := make(chan error, 1)
	go func() { errc <- api.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = api.Shutdown(shutdownCtx)
}

// loadCatalog prefers Postgres when configured and populated, otherwise
// downloads the datamining CSVs.
func loadCatalog(ctx context.Context, cfg config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	if dsn := cfg.PGDSN(); dsn != "" {
		pg, err := storage.New(dsn)
		if err != nil {
			logger.Warn("postgres unavailable, downloading catalog", "err", err)
		} else {
			defer pg.Close()
			items, recipes, err := pg.LoadCatalog(ctx)
			switch {
			case err != nil:
				logger.Warn("catalog load failed, downloading catalog", "err", err)
			case len(items) == 0:
				logger.Warn("catalog tables empty, run the importer; downloading catalog")
			default:
				logger.Info("catalog loaded from postgres", "items", len(items), "recipes", len(recipes))
				return catalog.New(items, recipes), nil
			}
		}
	}
	return catalog.Fetch(ctx, &http.Client{Timeout: 2 * time.Minute}, cfg.DataminingURL, logger)
}

func newStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (cache.Store[[]models.Listing], cache.Store[[]models.Listing], func()) {
	clog := logger.With("component", "cache")
	if cfg.CacheBackend == "redis" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			logger.Info("using redis cache", "addr", cfg.RedisAddr)
			return cache.NewRedis[[]models.Listing](rdb, clog), cache.NewRedis[[]models.Listing](rdb, clog), closer(rdb)
		}
		logger.Warn("redis unavailable, falling back to memory cache", "err", err)
	}
	return cache.New[[]models.Listing](cfg.CacheSweepInterval, clog),
		cache.New[[]models.Listing](cfg.CacheSweepInterval, clog),
		func() {}
}

func closer(rdb *redis.Client) func() {
	return func() { _ = rdb.Close() }
}
