package catalog

import "github.com/duisenbekovayan/xivprofit/internal/models"

// Catalog is the static item and recipe reference data.
type Catalog struct {
	items     []models.Item
	recipes   []models.Recipe
	craftable []models.Item
	known     map[int]struct{}
}

// New indexes items and recipes. Craftable items are the distinct known
// result items of recipes that have ingredients, in recipe order.
func New(items []models.Item, recipes []models.Recipe) *Catalog {
	c := &Catalog{
		items: items,
		known: make(map[int]struct{}, len(items)),
	}
	byID := make(map[int]models.Item, len(items))
	for _, it := range items {
		c.known[it.ID] = struct{}{}
		byID[it.ID] = it
	}

	seen := make(map[int]struct{})
	for _, r := range recipes {
		if len(r.Ingredients) == 0 {
			continue
		}
		c.recipes = append(c.recipes, r)
		if _, dup := seen[r.ResultItemID]; dup {
			continue
		}
		if it, ok := byID[r.ResultItemID]; ok {
			seen[r.ResultItemID] = struct{}{}
			c.craftable = append(c.craftable, it)
		}
	}
	return c
}

func (c *Catalog) HasItem(id int) bool {
	_, ok := c.known[id]
	return ok
}

func (c *Catalog) Items() []models.Item          { return c.items }
func (c *Catalog) Recipes() []models.Recipe      { return c.recipes }
func (c *Catalog) CraftableItems() []models.Item { return c.craftable }

func (c *Catalog) RecipesFor(itemID int) []models.Recipe {
	var out []models.Recipe
	for _, r := range c.recipes {
		if r.ResultItemID == itemID {
			out = append(out, r)
		}
	}
	return out
}
