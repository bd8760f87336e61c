package cache

import "fmt"

func ListingsKey(location string, itemID int) string {
	return fmt.Sprintf("listing-%s-%d", location, itemID)
}

func CheapestKey(location string, itemID, amount int, hq bool) string {
	return fmt.Sprintf("cheapest-%s-%d-%d-%t", location, itemID, amount, hq)
}
