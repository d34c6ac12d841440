package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockMutator is the only way application code changes a stock counter. The
// increment is a single SQL update, never a load-then-store.
type StockMutator interface {
	IncrementStock(ctx context.Context, ref ItemRef, delta int64) (int64, error)
}

// TxRepository exposes catalog writes that must share a caller-owned
// transaction (bulk ingestion).
type TxRepository interface {
	CreateItem(ctx context.Context, kind Kind, item Item) (Item, error)
}

type txRepo struct {
	tx pgx.Tx
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindProduct:
		return "products", nil
	case KindMedicine:
		return "medicines", nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const itemColumns = `id, code, name, description, category_id, pack_qty, brand_name, molecule, uom, shape, material, color, size, stock, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Description, &item.CategoryID, &item.PackQty,
		&item.BrandName, &item.Molecule, &item.UOM, &item.Shape, &item.Material, &item.Color, &item.Size,
		&item.Stock, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// Get returns the item named by ref.
func (r *Repository) Get(ctx context.Context, ref ItemRef) (Item, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return Item{}, err
	}
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE id=$1`, ref.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetByCode returns the item with the given public code.
func (r *Repository) GetByCode(ctx context.Context, kind Kind, code string) (Item, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Item{}, err
	}
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// List returns items matching the filter and the unfiltered match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	table, err := tableFor(filter.Kind)
	if err != nil {
		return nil, 0, err
	}
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CategoryID != nil {
		add("category_id=$%d", *filter.CategoryID)
	}
	if filter.BrandName != "" {
		add("brand_name ILIKE '%%'||$%d||'%%'", filter.BrandName)
	}
	if filter.Molecule != "" {
		add("molecule ILIKE '%%'||$%d||'%%'", filter.Molecule)
	}
	if filter.UOM != "" {
		add("LOWER(uom)=LOWER($%d)", filter.UOM)
	}
	if filter.Color != "" {
		add("LOWER(color)=LOWER($%d)", filter.Color)
	}
	if filter.IsActive != nil {
		add("is_active=$%d", *filter.IsActive)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		itemColumns, table, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Create inserts the item and assigns its public code from the new id.
func (r *Repository) Create(ctx context.Context, kind Kind, item Item) (Item, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreateItem(ctx, kind, item)
		if err != nil {
			return err
		}
		item = created
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (t *txRepo) CreateItem(ctx context.Context, kind Kind, item Item) (Item, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Item{}, err
	}
	err = t.tx.QueryRow(ctx, `INSERT INTO `+table+` (name, description, category_id, pack_qty, brand_name, molecule, uom, shape, material, color, size, stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		item.Name, item.Description, item.CategoryID, item.PackQty, item.BrandName, item.Molecule, item.UOM,
		item.Shape, item.Material, item.Color, item.Size, item.Stock, item.IsActive).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	// Public code derives from the generated id, so it is stamped after insert.
	item.Code = fmt.Sprintf("PRD-WH-%06d", item.ID)
	if _, err := t.tx.Exec(ctx, `UPDATE `+table+` SET code=$1 WHERE id=$2`, item.Code, item.ID); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Update rewrites the mutable fields of an item.
func (r *Repository) Update(ctx context.Context, ref ItemRef, item Item) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE `+table+` SET name=$1, description=$2, category_id=$3, pack_qty=$4, brand_name=$5, molecule=$6, uom=$7, shape=$8, material=$9, color=$10, size=$11, is_active=$12, updated_at=NOW() WHERE id=$13`,
		item.Name, item.Description, item.CategoryID, item.PackQty, item.BrandName, item.Molecule, item.UOM,
		item.Shape, item.Material, item.Color, item.Size, item.IsActive, ref.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an item.
func (r *Repository) Delete(ctx context.Context, ref ItemRef) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id=$1`, ref.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementStock applies an atomic stock delta and returns the new counter.
func (r *Repository) IncrementStock(ctx context.Context, ref ItemRef, delta int64) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	table, err := tableFor(ref.Kind)
	if err != nil {
		return 0, err
	}
	var stock int64
	err = r.pool.QueryRow(ctx, `UPDATE `+table+` SET stock = stock + $1, updated_at=NOW() WHERE id=$2 RETURNING stock`, delta, ref.ID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return stock, nil
}

// CategoryKinds loads the category to entity-kind mapping once per call site.
func (r *Repository) CategoryKinds(ctx context.Context) (KindMap, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, kind FROM categories WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	kinds := KindMap{}
	for rows.Next() {
		var id int64
		var kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		kinds[id] = Kind(kind)
	}
	return kinds, rows.Err()
}

// GetCategory returns a category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, kind, is_active FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Kind, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// GetCategoryByName returns a category by case-insensitive name match.
func (r *Repository) GetCategoryByName(ctx context.Context, name string) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, kind, is_active FROM categories WHERE LOWER(name)=LOWER($1)`, name).
		Scan(&c.ID, &c.Name, &c.Kind, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}
