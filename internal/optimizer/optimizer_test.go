package optimizer

import (
	"testing"
	"time"

	"github.com/duisenbekovayan/xivprofit/internal/models"
)

func listing(name string, qty, cost int) models.Listing {
	return models.Listing{RetainerName: name, Quantity: qty, TotalPrice: cost}
}

func names(ls []models.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.RetainerName
	}
	return out
}

func TestCheapestPrefersCheaperPair(t *testing.T) {
	ls := []models.Listing{
		listing("a", 5, 50),
		listing("b", 3, 40),
		listing("c", 10, 200),
	}
	res := Cheapest(ls, 8)
	if !res.Found() {
		t.Fatal("expected a feasible combination")
	}
	if res.TotalCost != 90 || res.TotalQuantity != 8 {
		t.Fatalf("expected cost 90 qty 8, got cost %d qty %d", res.TotalCost, res.TotalQuantity)
	}
	got := names(res.Listings)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}

func TestCheapestInfeasible(t *testing.T) {
	ls := []models.Listing{
		listing("a", 2, 10),
		listing("b", 3, 10),
		listing("c", 1, 10),
	}
	if res := Cheapest(ls, 100); res.Found() {
		t.Fatalf("expected no combination, got %v", names(res.Listings))
	}
}

func TestCheapestEmptyInputAndZeroAmount(t *testing.T) {
	if res := Cheapest(nil, 5); res.Found() || res.Iterations != 0 {
		t.Fatal("expected empty result for no listings")
	}
	ls := []models.Listing{listing("a", 1, 1), listing("b", 1, 1)}
	if res := Cheapest(ls, 0); res.Found() || res.Iterations != 0 {
		t.Fatal("expected empty result for zero amount")
	}
}

func TestCheapestTieKeepsEarliest(t *testing.T) {
	ls := []models.Listing{
		listing("first", 5, 10),
		listing("second", 5, 10),
		listing("third", 1, 1),
	}
	res := Cheapest(ls, 5)
	if got := names(res.Listings); len(got) != 1 || got[0] != "first" {
		t.Fatalf("expected [first], got %v", got)
	}
}

func TestFullSetIsNotEnumerated(t *testing.T) {
	// only the complete set reaches the amount; sizes stop at n-1
	ls := []models.Listing{listing("a", 3, 1), listing("b", 3, 1)}
	res := Cheapest(ls, 5)
	if res.Found() {
		t.Fatalf("expected no combination, got %v", names(res.Listings))
	}
	if res.Iterations != 2 {
		t.Fatalf("expected only singletons evaluated, got %d", res.Iterations)
	}
}

func TestSingleListingFindsNothing(t *testing.T) {
	res := Cheapest([]models.Listing{listing("a", 99, 1)}, 1)
	if res.Found() || res.Iterations != 0 {
		t.Fatalf("expected no evaluation of a single listing, got %d iterations", res.Iterations)
	}
}

func TestBestSizeBound(t *testing.T) {
	// {x,y,z} would cost 3 but size 3 exceeds best size 1 + 1
	ls := []models.Listing{
		listing("big", 10, 100),
		listing("x", 1, 1),
		listing("y", 1, 1),
		listing("z", 1, 1),
		listing("w", 1, 1),
	}
	res := Cheapest(ls, 3)
	if got := names(res.Listings); len(got) != 1 || got[0] != "big" {
		t.Fatalf("expected [big], got %v", got)
	}
	// 5 singletons + 10 pairs
	if res.Iterations != 15 {
		t.Fatalf("expected 15 iterations, got %d", res.Iterations)
	}
}

func TestSearchSpaceBoundStopsEnlarging(t *testing.T) {
	// 200^4 > 1e8, so only sizes 1..3 run and 5 units are never reached
	ls := make([]models.Listing, 200)
	for i := range ls {
		ls[i] = listing("l", 1, 1)
	}

	start := time.Now()
	res := Cheapest(ls, 5)
	elapsed := time.Since(start)

	if res.Found() {
		t.Fatal("expected the bounded search to miss the size-5 answer")
	}
	want := int64(200 + 19900 + 1313400)
	if res.Iterations != want {
		t.Fatalf("expected %d iterations, got %d", want, res.Iterations)
	}
	if elapsed > 10*time.Second {
		t.Fatalf("bounded search took too long: %s", elapsed)
	}
}

func TestSpaceExceeds(t *testing.T) {
	if spaceExceeds(100, 4, SearchSpaceLimit) {
		t.Fatal("100^4 equals the limit and must not exceed it")
	}
	if !spaceExceeds(100, 5, SearchSpaceLimit) {
		t.Fatal("100^5 must exceed the limit")
	}
	if !spaceExceeds(1_000_000_000, 1, SearchSpaceLimit) {
		t.Fatal("1e9^1 must exceed the limit")
	}
}
