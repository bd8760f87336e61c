package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/duisenbekovayan/xivprofit/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS recipes (
	id              INTEGER PRIMARY KEY,
	result_item_id  INTEGER NOT NULL,
	result_quantity INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS recipe_ingredients (
	recipe_id INTEGER NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
	slot      SMALLINT NOT NULL,
	item_id   INTEGER NOT NULL,
	quantity  INTEGER NOT NULL,
	PRIMARY KEY (recipe_id, slot)
);`

type PG struct{ DB *sql.DB }

func New(dsn string) (*PG, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PG{DB: db}, nil
}

func (p *PG) Close() error { return p.DB.Close() }

func (p *PG) Migrate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, schema)
	return err
}

// ReplaceCatalog swaps the stored catalog for the given items and recipes in
// one transaction.
func (p *PG) ReplaceCatalog(ctx context.Context, items []models.Item, recipes []models.Recipe) (err error) {
	tx, err := p.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `TRUNCATE recipe_ingredients, recipes, items`); err != nil {
		return err
	}

	itemStmt, err := tx.PrepareContext(ctx, `INSERT INTO items (id,name) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer itemStmt.Close()
	for _, it := range items {
		if _, err = itemStmt.ExecContext(ctx, it.ID, it.Name); err != nil {
			return fmt.Errorf("insert item %d: %w", it.ID, err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recipes (id,result_item_id,result_quantity) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer recStmt.Close()
	ingStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recipe_ingredients (recipe_id,slot,item_id,quantity) VALUES ($1,$2,$3,$4)
		ON CONFLICT (recipe_id,slot) DO NOTHING`)
	if err != nil {
		return err
	}
	defer ingStmt.Close()

	for _, r := range recipes {
		if _, err = recStmt.ExecContext(ctx, r.ID, r.ResultItemID, r.ResultItemQuantity); err != nil {
			return fmt.Errorf("insert recipe %d: %w", r.ID, err)
		}
		for slot, ing := range r.Ingredients {
			if _, err = ingStmt.ExecContext(ctx, r.ID, slot, ing.ItemID, ing.Quantity); err != nil {
				return fmt.Errorf("insert recipe %d ingredient %d: %w", r.ID, slot, err)
			}
		}
	}

	return tx.Commit()
}

func (p *PG) Items(ctx context.Context) ([]models.Item, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id,name FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (p *PG) Recipes(ctx context.Context) ([]models.Recipe, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT r.id, r.result_item_id, r.result_quantity, i.item_id, i.quantity
		FROM recipes r
		LEFT JOIN recipe_ingredients i ON i.recipe_id = r.id
		ORDER BY r.id, i.slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.Recipe
	for rows.Next() {
		var r models.Recipe
		var itemID, qty sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ResultItemID, &r.ResultItemQuantity, &itemID, &qty); err != nil {
			return nil, err
		}
		if n := len(res); n == 0 || res[n-1].ID != r.ID {
			res = append(res, r)
		}
		if itemID.Valid {
			last := &res[len(res)-1]
			last.Ingredients = append(last.Ingredients, models.Ingredient{ItemID: int(itemID.Int64), Quantity: int(qty.Int64)})
		}
	}
	return res, rows.Err()
}

// LoadCatalog returns the stored items and recipes. An empty item table is
// reported as zero items, not an error.
func (p *PG) LoadCatalog(ctx context.Context) ([]models.Item, []models.Recipe, error) {
	items, err := p.Items(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	recipes, err := p.Recipes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load recipes: %w", err)
	}
	return items, recipes, nil
}

func DSN(host string, port int, user, pass, db string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, pass, host, port, db)
}
