package optimizer

import "github.com/duisenbekovayan/xivprofit/internal/models"

// SearchSpaceLimit caps n^size for the next subset size to expand.
const SearchSpaceLimit = 100_000_000

type Result struct {
	Listings      []models.Listing `json:"listings"`
	TotalQuantity int              `json:"total_quantity"`
	TotalCost     int              `json:"total_cost"`
	// Iterations counts the subsets evaluated.
	Iterations int64 `json:"-"`
}

// Found reports whether a feasible combination was found.
func (r Result) Found() bool { return len(r.Listings) > 0 }

// Cheapest returns the minimum total_price subset of listings whose summed
// quantity reaches amount. Listings are taken in the given order and ties keep
// the first subset found.
//
// Subset sizes run from 1 to len(listings)-1. A size is not expanded when
// len(listings)^size exceeds SearchSpaceLimit, nor when it is more than one
// larger than the best feasible subset so far. Both bounds trade completeness
// for running time, so a cheaper, larger combination may be missed.
func Cheapest(listings []models.Listing, amount int) Result {
	var res Result
	n := len(listings)
	if n == 0 || amount <= 0 {
		return res
	}

	var (
		best     []int
		bestCost int
		bestQty  int
		haveBest bool
	)
	for size := 1; size < n; size++ {
		if spaceExceeds(n, size, SearchSpaceLimit) {
			break
		}
		if haveBest && size > len(best)+1 {
			break
		}

		combos := NewCombinations(n, size)
		for combos.Next() {
			res.Iterations++
			ix := combos.Indices()

			qty, cost := 0, 0
			for _, i := range ix {
				qty += listings[i].Quantity
				cost += listings[i].TotalPrice
			}
			if qty < amount {
				continue
			}
			if !haveBest || cost < bestCost {
				best = append(best[:0], ix...)
				bestCost, bestQty, haveBest = cost, qty, true
			}
		}
	}

	if !haveBest {
		return res
	}
	res.Listings = make([]models.Listing, len(best))
	for j, i := range best {
		res.Listings[j] = listings[i]
	}
	res.TotalQuantity = bestQty
	res.TotalCost = bestCost
	return res
}

func spaceExceeds(n, size int, limit int64) bool {
	p := int64(1)
	for i := 0; i < size; i++ {
		p *= int64(n)
		if p > limit {
			return true
		}
	}
	return false
}
