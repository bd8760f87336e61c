package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/duisenbekovayan/xivprofit/internal/cache"
	"github.com/duisenbekovayan/xivprofit/internal/models"
)

// fakeSource counts fetches and can hold them until released.
type fakeSource struct {
	mu       sync.Mutex
	calls    int
	listings []models.Listing
	err      error
	gate     chan struct{}
}

func (f *fakeSource) FetchListings(ctx context.Context, itemID int, location string) ([]models.Listing, error) {
	f.mu.Lock()
	f.calls++
	gate, ls, err := f.gate, f.listings, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return ls, nil
}

func (f *fakeSource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestService(src Source, cfg Config) (*Service, *cache.TTL[[]models.Listing]) {
	cheapest := cache.New[[]models.Listing](0, nil)
	return NewService(nil, src, cache.New[[]models.Listing](0, nil), cheapest, cfg), cheapest
}

func sampleListings() []models.Listing {
	return []models.Listing{
		{ItemID: 1, Quantity: 5, TotalPrice: 50, RetainerName: "a"},
		{ItemID: 1, Quantity: 3, TotalPrice: 40, RetainerName: "b"},
		{ItemID: 1, Quantity: 10, TotalPrice: 200, RetainerName: "c"},
	}
}

func TestFindCheapestCoalescesConcurrentCallers(t *testing.T) {
	src := &fakeSource{listings: sampleListings(), gate: make(chan struct{})}
	svc, _ := newTestService(src, Config{})
	q := Query{ItemID: 1, Location: "Cactuar", Amount: 8}

	const callers = 20
	results := make([][]models.Listing, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.FindCheapest(context.Background(), q)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if n := src.CallCount(); n != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(results[i]) != 2 {
			t.Fatalf("caller %d: expected 2 listings, got %d", i, len(results[i]))
		}
		// same computed slice, not a copy
		if &results[i][0] != &results[0][0] {
			t.Fatalf("caller %d received a different result value", i)
		}
	}
}

func TestFindCheapestCacheHitSkipsRecompute(t *testing.T) {
	src := &fakeSource{listings: sampleListings()}
	// listings expire quickly, so any recompute would have to fetch again
	svc, _ := newTestService(src, Config{ListingsTTL: time.Millisecond})
	q := Query{ItemID: 1, Location: "Cactuar", Amount: 8}

	first, err := svc.FindCheapest(context.Background(), q)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		again, err := svc.FindCheapest(context.Background(), q)
		if err != nil {
			t.Fatalf("repeat query: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("expected cached result, got %v", again)
		}
	}
	if n := src.CallCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestFindCheapestRecomputesAfterExpiry(t *testing.T) {
	src := &fakeSource{listings: sampleListings()}
	svc, _ := newTestService(src, Config{ListingsTTL: 20 * time.Millisecond, CheapestTTL: 20 * time.Millisecond})
	q := Query{ItemID: 1, Location: "Cactuar", Amount: 8}

	if _, err := svc.FindCheapest(context.Background(), q); err != nil {
		t.Fatalf("first query: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := svc.FindCheapest(context.Background(), q); err != nil {
		t.Fatalf("second query: %v", err)
	}
	if n := src.CallCount(); n != 2 {
		t.Fatalf("expected 2 fetches after expiry, got %d", n)
	}
}

func TestFindCheapestInfeasibleIsEmpty(t *testing.T) {
	src := &fakeSource{listings: sampleListings()}
	svc, _ := newTestService(src, Config{})

	got, err := svc.FindCheapest(context.Background(), Query{ItemID: 1, Location: "Cactuar", Amount: 1000})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestFindCheapestHQFallbackCachesBothKeys(t *testing.T) {
	src := &fakeSource{listings: []models.Listing{
		{Quantity: 1, TotalPrice: 10, HQ: true, RetainerName: "hq1"},
		{Quantity: 1, TotalPrice: 10, HQ: true, RetainerName: "hq2"},
		{Quantity: 5, TotalPrice: 20, RetainerName: "nq1"},
		{Quantity: 5, TotalPrice: 30, RetainerName: "nq2"},
	}}
	svc, cheapest := newTestService(src, Config{ListingsTTL: time.Millisecond})
	ctx := context.Background()
	hq := Query{ItemID: 1, Location: "Cactuar", Amount: 6, HQ: true}

	got, err := svc.FindCheapest(ctx, hq)
	if err != nil {
		t.Fatalf("hq query: %v", err)
	}
	if len(got) != 2 || got[0].RetainerName != "hq1" || got[1].RetainerName != "nq1" {
		t.Fatalf("expected mixed [hq1 nq1], got %+v", got)
	}

	nqKey := cache.CheapestKey("Cactuar", 1, 6, false)
	stored, ok := cheapest.Get(ctx, nqKey)
	if !ok || &stored[0] != &got[0] {
		t.Fatal("expected the same result stored under the nq key")
	}

	time.Sleep(10 * time.Millisecond)
	nq := hq
	nq.HQ = false
	again, err := svc.FindCheapest(ctx, nq)
	if err != nil {
		t.Fatalf("nq query: %v", err)
	}
	if &again[0] != &got[0] {
		t.Fatal("nq query did not reuse the cached value")
	}
	if n := src.CallCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestFindCheapestHQFoundCachesOnlyHQKey(t *testing.T) {
	src := &fakeSource{listings: []models.Listing{
		{Quantity: 3, TotalPrice: 90, HQ: true, RetainerName: "hq1"},
		{Quantity: 3, TotalPrice: 90, HQ: true, RetainerName: "hq2"},
		{Quantity: 6, TotalPrice: 10, RetainerName: "nq1"},
	}}
	svc, cheapest := newTestService(src, Config{})
	ctx := context.Background()

	got, err := svc.FindCheapest(ctx, Query{ItemID: 1, Location: "Cactuar", Amount: 3, HQ: true})
	if err != nil {
		t.Fatalf("hq query: %v", err)
	}
	if len(got) != 1 || !got[0].HQ {
		t.Fatalf("expected a single hq listing, got %+v", got)
	}
	if _, ok := cheapest.Get(ctx, cache.CheapestKey("Cactuar", 1, 3, false)); ok {
		t.Fatal("nq key must not be written when hq listings suffice")
	}

	nq, err := svc.FindCheapest(ctx, Query{ItemID: 1, Location: "Cactuar", Amount: 3})
	if err != nil {
		t.Fatalf("nq query: %v", err)
	}
	if len(nq) != 1 || nq[0].RetainerName != "nq1" {
		t.Fatalf("expected [nq1], got %+v", nq)
	}
}

func TestFindCheapestFetchErrorReachesAllWaiters(t *testing.T) {
	boom := errors.New("upstream down")
	src := &fakeSource{listings: sampleListings(), err: boom, gate: make(chan struct{})}
	svc, _ := newTestService(src, Config{})
	q := Query{ItemID: 1, Location: "Cactuar", Amount: 8}

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.FindCheapest(context.Background(), q)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d: expected upstream error, got %v", i, err)
		}
	}

	// failures are not cached and the job slot is released
	src.SetError(nil)
	got, err := svc.FindCheapest(context.Background(), q)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 listings on retry, got %d", len(got))
	}
	if n := src.CallCount(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestFindCheapestRejectsZeroAmount(t *testing.T) {
	src := &fakeSource{listings: sampleListings()}
	svc, _ := newTestService(src, Config{})

	for _, amount := range []int{0, -3} {
		_, err := svc.FindCheapest(context.Background(), Query{ItemID: 1, Location: "Cactuar", Amount: amount})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if n := src.CallCount(); n != 0 {
		t.Fatalf("expected no fetch, got %d", n)
	}
}

func TestFindCheapestJobOutlivesAbandonedCaller(t *testing.T) {
	src := &fakeSource{listings: sampleListings(), gate: make(chan struct{})}
	svc, cheapest := newTestService(src, Config{})
	q := Query{ItemID: 1, Location: "Cactuar", Amount: 8}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.FindCheapest(ctx, q)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(src.gate)
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := cheapest.Get(context.Background(), q.key()); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned job never stored its result")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.FindCheapest(context.Background(), q); err != nil {
		t.Fatalf("follow-up query: %v", err)
	}
	if n := src.CallCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestListingsCoalescesAcrossAmounts(t *testing.T) {
	src := &fakeSource{listings: sampleListings(), gate: make(chan struct{})}
	svc, _ := newTestService(src, Config{})

	var wg sync.WaitGroup
	for _, amount := range []int{1, 2, 3, 8} {
		wg.Add(1)
		go func(amount int) {
			defer wg.Done()
			if _, err := svc.FindCheapest(context.Background(), Query{ItemID: 1, Location: "Cactuar", Amount: amount}); err != nil {
				t.Errorf("amount %d: %v", amount, err)
			}
		}(amount)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if n := src.CallCount(); n != 1 {
		t.Fatalf("expected one shared listings fetch, got %d", n)
	}
}

func TestLowestUnitPrice(t *testing.T) {
	src := &fakeSource{listings: []models.Listing{
		{PricePerUnit: 12.5}, {PricePerUnit: 3.25}, {PricePerUnit: 7},
	}}
	svc, _ := newTestService(src, Config{})

	p, err := svc.LowestUnitPrice(context.Background(), 1, "Cactuar")
	if err != nil {
		t.Fatalf("lowest: %v", err)
	}
	if p != 3.25 {
		t.Fatalf("expected 3.25, got %v", p)
	}

	empty, _ := newTestService(&fakeSource{}, Config{})
	if p, _ := empty.LowestUnitPrice(context.Background(), 1, "Cactuar"); p != 0 {
		t.Fatalf("expected 0 for no listings, got %v", p)
	}
}

func TestWarmListingsServesQueriesWithoutFetch(t *testing.T) {
	src := &fakeSource{}
	svc, _ := newTestService(src, Config{})
	ctx := context.Background()
	snap := models.ListingSnapshot{ItemID: 1, Location: "Cactuar", Listings: sampleListings()}

	if !svc.WarmListings(ctx, snap) {
		t.Fatal("warm on miss should insert")
	}
	if svc.WarmListings(ctx, models.ListingSnapshot{ItemID: 1, Location: "Cactuar"}) {
		t.Fatal("warm must not overwrite a fresh entry")
	}

	got, err := svc.FindCheapest(ctx, Query{ItemID: 1, Location: "Cactuar", Amount: 8})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(got))
	}
	if n := src.CallCount(); n != 0 {
		t.Fatalf("expected no fetch, got %d", n)
	}
}
