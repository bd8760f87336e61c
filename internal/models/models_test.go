package models

import (
	"errors"
	"testing"
)

func TestListingCheck(t *testing.T) {
	ok := Listing{ItemID: 1, Quantity: 1, PricePerUnit: 0, TotalPrice: 0}
	if err := ok.Check(); err != nil {
		t.Fatalf("free listing rejected: %v", err)
	}
	bad := map[string]Listing{
		"zero quantity":     {Quantity: 0, TotalPrice: 1, PricePerUnit: 1},
		"negative quantity": {Quantity: -2, TotalPrice: 1, PricePerUnit: 1},
		"negative total":    {Quantity: 1, TotalPrice: -500, PricePerUnit: 1},
		"negative unit":     {Quantity: 1, TotalPrice: 1, PricePerUnit: -0.5},
	}
	for name, l := range bad {
		if err := l.Check(); !errors.Is(err, ErrInvalidListing) {
			t.Errorf("%s: expected ErrInvalidListing, got %v", name, err)
		}
	}
}
