package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/duisenbekovayan/xivprofit/internal/models"
)

const (
	DefaultDataminingURL = "https://raw.githubusercontent.com/viion/ffxiv-datamining/master/csv"
	ingredientSlots      = 8
)

var ErrMalformed = errors.New("catalog: malformed datamining csv")

// table reads a datamining sheet: an index row, a header row and a type row
// precede the data.
type table struct {
	r   *csv.Reader
	col map[string]int
}

func newTable(src io.Reader) (*table, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("%w: index row: %v", ErrMalformed, err)
	}
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header row: %v", ErrMalformed, err)
	}
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("%w: type row: %v", ErrMalformed, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	return &table{r: r, col: col}, nil
}

func (t *table) require(names ...string) error {
	for _, n := range names {
		if _, ok := t.col[n]; !ok {
			return fmt.Errorf("%w: missing column %q", ErrMalformed, n)
		}
	}
	return nil
}

func (t *table) str(rec []string, name string) (string, error) {
	i := t.col[name]
	if i >= len(rec) {
		return "", fmt.Errorf("column %q out of range", name)
	}
	return rec[i], nil
}

func (t *table) num(rec []string, name string) (int, error) {
	s, err := t.str(rec, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return v, nil
}

// rows calls fn for every data row. Rows that fn rejects are logged and skipped.
func (t *table) rows(logger *slog.Logger, sheet string, fn func([]string) error) error {
	for {
		rec, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				logger.Error("csv row unreadable", "sheet", sheet, "err", err)
				continue
			}
			return err
		}
		if err := fn(rec); err != nil {
			logger.Error("csv row skipped", "sheet", sheet, "err", err)
		}
	}
}

func ParseItems(src io.Reader, logger *slog.Logger) ([]models.Item, error) {
	t, err := newTable(src)
	if err != nil {
		return nil, err
	}
	if err := t.require("#", "Name"); err != nil {
		return nil, err
	}

	var items []models.Item
	err = t.rows(logger, "Item", func(rec []string) error {
		id, err := t.num(rec, "#")
		if err != nil {
			return err
		}
		name, err := t.str(rec, "Name")
		if err != nil {
			return err
		}
		items = append(items, models.Item{ID: id, Name: name})
		return nil
	})
	return items, err
}

func ParseRecipes(src io.Reader, logger *slog.Logger) ([]models.Recipe, error) {
	t, err := newTable(src)
	if err != nil {
		return nil, err
	}
	cols := []string{"#", "Item{Result}", "Amount{Result}"}
	for i := 0; i < ingredientSlots; i++ {
		cols = append(cols, itemCol(i), amountCol(i))
	}
	if err := t.require(cols...); err != nil {
		return nil, err
	}

	var recipes []models.Recipe
	err = t.rows(logger, "Recipe", func(rec []string) error {
		var r models.Recipe
		var err error
		if r.ID, err = t.num(rec, "#"); err != nil {
			return err
		}
		if r.ResultItemID, err = t.num(rec, "Item{Result}"); err != nil {
			return err
		}
		if r.ResultItemQuantity, err = t.num(rec, "Amount{Result}"); err != nil {
			return err
		}
		for i := 0; i < ingredientSlots; i++ {
			amount, err := t.num(rec, amountCol(i))
			if err != nil {
				return err
			}
			if amount <= 0 {
				continue
			}
			item, err := t.num(rec, itemCol(i))
			if err != nil {
				return err
			}
			r.Ingredients = append(r.Ingredients, models.Ingredient{ItemID: item, Quantity: amount})
		}
		recipes = append(recipes, r)
		return nil
	})
	return recipes, err
}

func itemCol(i int) string   { return fmt.Sprintf("Item{Ingredient}[%d]", i) }
func amountCol(i int) string { return fmt.Sprintf("Amount{Ingredient}[%d]", i) }

// Fetch downloads Item.csv and Recipe.csv from baseURL and builds a Catalog.
func Fetch(ctx context.Context, client *http.Client, baseURL string, logger *slog.Logger) (*Catalog, error) {
	items, recipes, err := Download(ctx, client, baseURL, logger)
	if err != nil {
		return nil, err
	}
	return New(items, recipes), nil
}

func Download(ctx context.Context, client *http.Client, baseURL string, logger *slog.Logger) ([]models.Item, []models.Recipe, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultDataminingURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL = strings.TrimRight(baseURL, "/")

	logger.Info("loading item data")
	var items []models.Item
	err := download(ctx, client, baseURL+"/Item.csv", func(r io.Reader) (err error) {
		items, err = ParseItems(r, logger)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var recipes []models.Recipe
	err = download(ctx, client, baseURL+"/Recipe.csv", func(r io.Reader) (err error) {
		recipes, err = ParseRecipes(r, logger)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("finished loading item data", "items", len(items), "recipes", len(recipes))
	return items, recipes, nil
}

func download(ctx context.Context, client *http.Client, u string, parse func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", u, resp.StatusCode)
	}
	if err := parse(resp.Body); err != nil {
		return fmt.Errorf("parse %s: %w", u, err)
	}
	return nil
}
