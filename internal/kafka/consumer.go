package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/duisenbekovayan/xivprofit/internal/models"
)

var ErrInvalidSnapshot = errors.New("kafka: invalid listing snapshot")

// Warmer accepts pushed listings. It reports whether the snapshot was stored;
// a fresh cached entry is never overwritten.
type Warmer interface {
	WarmListings(ctx context.Context, snap models.ListingSnapshot) bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Consumer struct {
	reader *kafkago.Reader
	dlq    messageWriter // nil: invalid messages are dropped
	warmer Warmer
	logger *slog.Logger
	cfg    Config
}

type Config struct {
	Brokers          []string
	Topic            string
	GroupID          string
	DLQTopic         string // "" disables the DLQ
	MinBytes         int
	MaxBytes         int
	MaxWait          time.Duration
	ReadErrorBackoff time.Duration
}

func NewConsumer(cfg Config, w Warmer, logger *slog.Logger) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 10e3
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 2 * time.Second
	}
	if cfg.ReadErrorBackoff == 0 {
		cfg.ReadErrorBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
		// offsets are committed by hand after each message
		CommitInterval: 0,
	})

	c := &Consumer{
		reader: r,
		warmer: w,
		logger: logger.With("component", "kafka", "topic", cfg.Topic),
		cfg:    cfg,
	}
	if dlq := NewDLQWriter(cfg.Brokers, cfg.DLQTopic); dlq != nil {
		c.dlq = dlq
	}
	return c
}

// NewDLQWriter returns nil when topic is empty.
func NewDLQWriter(brokers []string, topic string) *kafkago.Writer {
	if topic == "" {
		return nil
	}
	return &kafkago.Writer{
		Addr:        kafkago.TCP(brokers...),
		Topic:       topic,
		Balancer:    &kafkago.LeastBytes{},
		Compression: kafkago.Lz4,
	}
}

func (c *Consumer) Close() error {
	var err1, err2 error
	if c.reader != nil {
		err1 = c.reader.Close()
	}
	if c.dlq != nil {
		err2 = c.dlq.Close()
	}
	return errors.Join(err1, err2)
}

func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "group", c.cfg.GroupID)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.logger.Warn("fetch failed", "err", err, "retry_in", c.cfg.ReadErrorBackoff)
			if !sleep(ctx, c.cfg.ReadErrorBackoff) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, m) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("commit failed", "offset", m.Offset, "err", err)
		}
	}
}

// handle processes m until it succeeds, reporting false when ctx ends first.
// The reader has already moved past m and a later commit would skip it, so a
// failure is retried here rather than left for redelivery.
func (c *Consumer) handle(ctx context.Context, m kafkago.Message) bool {
	for {
		err := c.processMessage(ctx, m)
		if err == nil {
			return true
		}
		c.logger.Error("process failed", "offset", m.Offset, "partition", m.Partition, "err", err)
		if !sleep(ctx, c.cfg.ReadErrorBackoff) {
			return false
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, m kafkago.Message) error {
	snap, err := DecodeSnapshot(m.Value)
	if err != nil {
		c.logger.Warn("invalid snapshot", "offset", m.Offset, "err", err)
		if c.dlq == nil {
			return nil
		}
		if err := c.dlq.WriteMessages(ctx, kafkago.Message{Key: m.Key, Value: m.Value, Time: time.Now()}); err != nil {
			return fmt.Errorf("dead-letter offset %d: %w", m.Offset, err)
		}
		return nil
	}

	stored := c.warmer.WarmListings(ctx, snap)
	c.logger.Debug("snapshot received",
		"item", snap.ItemID,
		"location", snap.Location,
		"listings", len(snap.Listings),
		"stored", stored,
		"offset", m.Offset,
	)
	return nil
}

// DecodeSnapshot parses and validates a pushed snapshot. Listings without an
// item id inherit the snapshot's; listings for another item are rejected.
func DecodeSnapshot(b []byte) (models.ListingSnapshot, error) {
	var snap models.ListingSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.ItemID <= 0 || snap.Location == "" {
		return snap, fmt.Errorf("%w: missing item_id or location", ErrInvalidSnapshot)
	}
	if snap.Listings == nil {
		snap.Listings = []models.Listing{}
	}
	for i := range snap.Listings {
		l := &snap.Listings[i]
		if l.ItemID == 0 {
			l.ItemID = snap.ItemID
		}
		if l.ItemID != snap.ItemID {
			return snap, fmt.Errorf("%w: listing %d is for item %d", ErrInvalidSnapshot, i, l.ItemID)
		}
		if err := l.Check(); err != nil {
			return snap, fmt.Errorf("%w: listing %d: %v", ErrInvalidSnapshot, i, err)
		}
	}
	return snap, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
