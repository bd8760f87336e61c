package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/duisenbekovayan/xivprofit/internal/cache"
	"github.com/duisenbekovayan/xivprofit/internal/models"
	"github.com/duisenbekovayan/xivprofit/internal/optimizer"
)

const (
	DefaultListingsTTL = 300 * time.Second
	DefaultCheapestTTL = time.Hour
)

var ErrInvalidAmount = errors.New("market: amount must be at least 1")

// Source supplies the current listings of an item in a world, data center or region.
type Source interface {
	FetchListings(ctx context.Context, itemID int, location string) ([]models.Listing, error)
}

type Config struct {
	ListingsTTL time.Duration
	CheapestTTL time.Duration
}

type Query struct {
	ItemID   int
	Location string
	Amount   int
	HQ       bool
}

func (q Query) key() string { return cache.CheapestKey(q.Location, q.ItemID, q.Amount, q.HQ) }

// Service answers listing queries over a cached Source. At most one fetch per
// listings key and one search per combination key run at any time; concurrent
// callers of the same key share the result.
type Service struct {
	logger   *slog.Logger
	source   Source
	listings cache.Store[[]models.Listing]
	cheapest cache.Store[[]models.Listing]
	cfg      Config

	fetches singleflight.Group
	jobs    singleflight.Group
}

func NewService(logger *slog.Logger, src Source, listings, cheapest cache.Store[[]models.Listing], cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListingsTTL <= 0 {
		cfg.ListingsTTL = DefaultListingsTTL
	}
	if cfg.CheapestTTL <= 0 {
		cfg.CheapestTTL = DefaultCheapestTTL
	}
	return &Service{
		logger:   logger,
		source:   src,
		listings: listings,
		cheapest: cheapest,
		cfg:      cfg,
	}
}

// Listings returns the item's listings, from cache when fresh.
func (s *Service) Listings(ctx context.Context, itemID int, location string) ([]models.Listing, error) {
	key := cache.ListingsKey(location, itemID)
	if v, ok := s.listings.Get(ctx, key); ok {
		return v, nil
	}

	ch := s.fetches.DoChan(key, func() (any, error) {
		// the fetch outlives any single caller
		fctx := context.WithoutCancel(ctx)
		ls, err := s.source.FetchListings(fctx, itemID, location)
		if err != nil {
			return nil, fmt.Errorf("fetch listings %d@%s: %w", itemID, location, err)
		}
		s.listings.Set(fctx, key, ls, s.cfg.ListingsTTL)
		return ls, nil
	})
	return await(ctx, ch)
}

// WarmListings stores pushed listings unless a fresh entry already exists.
func (s *Service) WarmListings(ctx context.Context, snap models.ListingSnapshot) bool {
	return s.listings.Set(ctx, cache.ListingsKey(snap.Location, snap.ItemID), snap.Listings, s.cfg.ListingsTTL)
}

// LowestUnitPrice returns the smallest price per unit on offer, 0 when nothing is listed.
func (s *Service) LowestUnitPrice(ctx context.Context, itemID int, location string) (float64, error) {
	ls, err := s.Listings(ctx, itemID, location)
	if err != nil {
		return 0, err
	}
	if len(ls) == 0 {
		return 0, nil
	}
	lowest := ls[0].PricePerUnit
	for _, l := range ls[1:] {
		if l.PricePerUnit < lowest {
			lowest = l.PricePerUnit
		}
	}
	return lowest, nil
}

// FindCheapest returns the cheapest set of listings supplying at least
// q.Amount units, or an empty slice when no combination is feasible.
// Callers that give up waiting do not stop the computation; its result is
// still cached.
func (s *Service) FindCheapest(ctx context.Context, q Query) ([]models.Listing, error) {
	if q.Amount < 1 {
		return nil, ErrInvalidAmount
	}

	key := q.key()
	if v, ok := s.cheapest.Get(ctx, key); ok {
		return v, nil
	}

	ch := s.jobs.DoChan(key, func() (any, error) {
		return s.runJob(context.WithoutCancel(ctx), q, key)
	})
	return await(ctx, ch)
}

func (s *Service) runJob(ctx context.Context, q Query, key string) ([]models.Listing, error) {
	logger := s.logger.With("job", uuid.NewString(), "key", key)

	// an earlier job may have stored the answer after our miss
	if v, ok := s.cheapest.Get(ctx, key); ok {
		return v, nil
	}

	listings, err := s.Listings(ctx, q.ItemID, q.Location)
	if err != nil {
		logger.Warn("cheapest job failed", "err", err)
		return nil, err
	}

	if q.HQ {
		res := s.search(logger, onlyHQ(listings), q.Amount)
		if res.Found() {
			s.cheapest.Set(ctx, key, res.Listings, s.cfg.CheapestTTL)
			return res.Listings, nil
		}
		logger.Debug("no hq combination, trying any quality")
	}

	res := s.search(logger, listings, q.Amount)
	out := res.Listings
	if out == nil {
		out = []models.Listing{}
	}
	s.cheapest.Set(ctx, key, out, s.cfg.CheapestTTL)
	if q.HQ {
		// the any-quality answer is also the nq answer
		nq := q
		nq.HQ = false
		s.cheapest.Set(ctx, nq.key(), out, s.cfg.CheapestTTL)
	}
	return out, nil
}

func (s *Service) search(logger *slog.Logger, listings []models.Listing, amount int) optimizer.Result {
	start := time.Now()
	res := optimizer.Cheapest(listings, amount)
	logger.Debug("search finished",
		"listings", len(listings),
		"amount", amount,
		"found", res.Found(),
		"cost", res.TotalCost,
		"iterations", res.Iterations,
		"elapsed", time.Since(start),
	)
	return res
}

func onlyHQ(ls []models.Listing) []models.Listing {
	out := make([]models.Listing, 0, len(ls))
	for _, l := range ls {
		if l.HQ {
			out = append(out, l)
		}
	}
	return out
}

func await(ctx context.Context, ch <-chan singleflight.Result) ([]models.Listing, error) {
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]models.Listing), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
