package indent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbill/flowbill/internal/platform/db"
)

// Repository persists indents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the indent header and lines in one transaction.
func (r *Repository) Create(ctx context.Context, in Indent) (Indent, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO indents (number, store_id, status, suggested_vendor_ids)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			in.Number, in.StoreID, in.Status, in.SuggestedVendors).Scan(&in.ID, &in.CreatedAt)
		if err != nil {
			return err
		}

		for i := range in.Items {
			item := &in.Items[i]
			item.IndentID = in.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO indent_items (indent_id, product_id, qty)
				VALUES ($1, $2, $3)
				RETURNING id`,
				in.ID, item.ProductID, item.Qty).Scan(&item.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Indent{}, err
	}
	return in, nil
}

// Get fetches an indent with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Indent, error) {
	var in Indent
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, store_id, status, suggested_vendor_ids, created_at
		FROM indents WHERE id = $1`, id).
		Scan(&in.ID, &in.Number, &in.StoreID, &in.Status, &in.SuggestedVendors, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Indent{}, ErrNotFound
	}
	if err != nil {
		return Indent{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, indent_id, product_id, qty FROM indent_items WHERE indent_id = $1 ORDER BY id`, id)
	if err != nil {
		return Indent{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item IndentItem
		if err := rows.Scan(&item.ID, &item.IndentID, &item.ProductID, &item.Qty); err != nil {
			return Indent{}, err
		}
		in.Items = append(in.Items, item)
	}
	return in, rows.Err()
}

// StoreExists reports whether the store is registered.
func (r *Repository) StoreExists(ctx context.Context, storeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID).Scan(&exists)
	return exists, err
}

// MissingProducts returns the subset of ids with no product row.
func (r *Repository) MissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT candidate.id
		FROM unnest($1::bigint[]) AS candidate(id)
		LEFT JOIN products p ON p.id = candidate.id
		WHERE p.id IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

// CategoriesForProducts resolves the distinct category names of the products.
func (r *Repository) CategoriesForProducts(ctx context.Context, ids []int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT c.name
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)
		ORDER BY c.name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
