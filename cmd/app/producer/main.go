// Command producer publishes a listing snapshot file to the listings topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/duisenbekovayan/xivprofit/internal/cache"
	"github.com/duisenbekovayan/xivprofit/internal/config"
	"github.com/duisenbekovayan/xivprofit/internal/kafka"
	"github.com/duisenbekovayan/xivprofit/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	file := flag.String("file", "snapshot.json", "listing snapshot to publish")
	flag.Parse()

	if err := publish(cfg, *file, logger); err != nil {
		logger.Error("publish failed", "file", *file, "err", err)
		os.Exit(1)
	}
}

func publish(cfg config.Config, file string, logger *slog.Logger) error {
	broker := cfg.KafkaBroker
	if broker == "" {
		broker = "localhost:9092"
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	snap, err := kafka.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	w := &kafkago.Writer{
		Addr:     kafkago.TCP(broker),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafkago.Hash{},
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(cache.ListingsKey(snap.Location, snap.ItemID)),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write to %s/%s: %w", broker, cfg.KafkaTopic, err)
	}
	logger.Info("snapshot published", "item", snap.ItemID, "location", snap.Location, "listings", len(snap.Listings))
	return nil
}
