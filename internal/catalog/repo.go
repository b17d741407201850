package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vendabot/vendabot/internal/redisx"
)

var ErrProductNotFound = errors.New("product not found")

type Repo struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Log   *logrus.Logger
}

// List returns the catalog in display order, read-through the redis
// snapshot. Cache trouble falls back to the database.
func (r *Repo) List(ctx context.Context) ([]Product, error) {
	if r.Redis != nil {
		if s, err := r.Redis.Get(ctx, redisx.KeyCatalog).Result(); err == nil && s != "" {
			var ps []Product
			if err := json.Unmarshal([]byte(s), &ps); err == nil {
				return ps, nil
			}
		}
	}

	rows, err := r.DB.Query(ctx, `SELECT id, title, color, price_cents, stock, image_url, created_at, updated_at
	                              FROM products ORDER BY id`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list products")
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Color, &p.PriceCents, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "list products")
	}

	if r.Redis != nil {
		if b, err := json.Marshal(out); err == nil {
			if err := r.Redis.Set(ctx, redisx.KeyCatalog, b, redisx.TTLCatalog).Err(); err != nil && r.Log != nil {
				r.Log.WithError(err).Debug("catalog cache set failed")
			}
		}
	}
	return out, nil
}

func (r *Repo) GetByTitle(ctx context.Context, title string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, title, color, price_cents, stock, image_url, created_at, updated_at
	                           FROM products WHERE lower(title) = lower($1)`, title).
		Scan(&p.ID, &p.Title, &p.Color, &p.PriceCents, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, pkgerrors.Wrap(err, "get product")
	}
	return &p, nil
}

// InvalidateCache drops the catalog snapshot; called after stock changes.
func (r *Repo) InvalidateCache(ctx context.Context) {
	if r.Redis == nil {
		return
	}
	if err := r.Redis.Del(ctx, redisx.KeyCatalog).Err(); err != nil && r.Log != nil {
		r.Log.WithError(err).Debug("catalog cache invalidate failed")
	}
}
