package models

import (
	"errors"
	"fmt"
)

var ErrInvalidListing = errors.New("invalid listing")

// Listing is one sell order on the marketboard. Listings are read-only once fetched.
type Listing struct {
	ItemID       int     `json:"item_id"`
	WorldID      int     `json:"world_id"`
	PricePerUnit float64 `json:"price_per_unit"`
	Quantity     int     `json:"quantity"`
	TotalPrice   int     `json:"total_price"`
	HQ           bool    `json:"hq"`
	RetainerName string  `json:"retainer_name"` // or npc vendor name
}

// Check rejects listings the combination search cannot price: a quantity
// below one or a negative price.
func (l Listing) Check() error {
	switch {
	case l.Quantity <= 0:
		return fmt.Errorf("%w: quantity %d", ErrInvalidListing, l.Quantity)
	case l.TotalPrice < 0:
		return fmt.Errorf("%w: total price %d", ErrInvalidListing, l.TotalPrice)
	case l.PricePerUnit < 0:
		return fmt.Errorf("%w: price per unit %v", ErrInvalidListing, l.PricePerUnit)
	}
	return nil
}

// ListingSnapshot is a full set of listings for one item in one location,
// as pushed by an upstream feed.
type ListingSnapshot struct {
	ItemID   int       `json:"item_id"`
	Location string    `json:"location"`
	Listings []Listing `json:"listings"`
}

type Item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Ingredient struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

type Recipe struct {
	ID                 int          `json:"id"`
	ResultItemID       int          `json:"result_item_id"`
	ResultItemQuantity int          `json:"result_item_quantity"`
	Ingredients        []Ingredient `json:"ingredients"`
}
