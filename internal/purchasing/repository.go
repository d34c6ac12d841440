package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbill/flowbill/internal/catalog"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, vendor_id, order_date, status, total_amount, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &po.OrderDate, &po.Status, &po.TotalAmount, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, err
}

// Create inserts the order header and lines in one transaction and stamps the
// public number from the generated id.
func (r *Repository) Create(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, vendor_id, order_date, status, total_amount)
		VALUES ('', $1, $2, $3, $4)
		RETURNING `+orderColumns,
		po.VendorID, po.OrderDate, po.Status, po.TotalAmount)
	created, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, err
	}

	created.Number = fmt.Sprintf("PO-WH-%06d", created.ID)
	if _, err := tx.Exec(ctx, `UPDATE purchase_orders SET number = $1 WHERE id = $2`, created.Number, created.ID); err != nil {
		return PurchaseOrder{}, err
	}

	for i := range po.Items {
		item := &po.Items[i]
		item.OrderID = created.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, item_kind, item_id, qty, uom, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			created.ID, item.Item.Kind, item.Item.ID, item.Qty, item.UOM, item.UnitPrice, item.Subtotal).Scan(&item.ID)
		if err != nil {
			return PurchaseOrder{}, err
		}
	}
	created.Items = po.Items

	if err := tx.Commit(ctx); err != nil {
		return PurchaseOrder{}, err
	}
	return created, nil
}

func (r *Repository) items(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, purchase_order_id, item_kind, item_id, qty, uom, unit_price, subtotal
		FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PurchaseOrderItem
	for rows.Next() {
		var item PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Item.Kind, &item.Item.ID,
			&item.Qty, &item.UOM, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get fetches one order with its lines, vendor metadata and category summary.
func (r *Repository) Get(ctx context.Context, id int64) (Detail, error) {
	var detail Detail
	row := r.pool.QueryRow(ctx, `
		SELECT po.id, po.number, po.vendor_id, po.order_date, po.status, po.total_amount,
			po.created_at, po.updated_at, v.code, v.name
		FROM purchase_orders po
		JOIN vendors v ON v.id = po.vendor_id
		WHERE po.id = $1`, id)
	err := row.Scan(&detail.ID, &detail.Number, &detail.VendorID, &detail.OrderDate, &detail.Status,
		&detail.TotalAmount, &detail.CreatedAt, &detail.UpdatedAt, &detail.VendorCode, &detail.VendorName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Detail{}, ErrNotFound
	}
	if err != nil {
		return Detail{}, err
	}

	if detail.Items, err = r.items(ctx, id); err != nil {
		return Detail{}, err
	}
	summaries, err := r.categorySummaries(ctx, []int64{id})
	if err != nil {
		return Detail{}, err
	}
	detail.CategorySummary = summaries[id]
	return detail, nil
}

// categorySummaries resolves distinct category names per order across both
// catalog tables.
func (r *Repository) categorySummaries(ctx context.Context, orderIDs []int64) (map[int64]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT poi.purchase_order_id, c.name
		FROM purchase_order_items poi
		JOIN products p ON poi.item_kind = 'product' AND poi.item_id = p.id
		JOIN categories c ON c.id = p.category_id
		WHERE poi.purchase_order_id = ANY($1)
		UNION
		SELECT poi.purchase_order_id, c.name
		FROM purchase_order_items poi
		JOIN medicines m ON poi.item_kind = 'medicine' AND poi.item_id = m.id
		JOIN categories c ON c.id = m.category_id
		WHERE poi.purchase_order_id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := map[int64][]string{}
	for rows.Next() {
		var orderID int64
		var name string
		if err := rows.Scan(&orderID, &name); err != nil {
			return nil, err
		}
		names[orderID] = append(names[orderID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[int64]string, len(names))
	for orderID, list := range names {
		out[orderID] = CategorySummary(list)
	}
	return out, nil
}

// List returns orders matching the filter with vendor metadata and category
// summaries attached.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Detail, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	idx := 1
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("po.status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.VendorID != nil {
		conditions = append(conditions, fmt.Sprintf("po.vendor_id = $%d", idx))
		args = append(args, *filter.VendorID)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders po WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT po.id, po.number, po.vendor_id, po.order_date, po.status, po.total_amount,
			po.created_at, po.updated_at, v.code, v.name
		FROM purchase_orders po
		JOIN vendors v ON v.id = po.vendor_id
		WHERE %s ORDER BY po.id DESC LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Detail
	var ids []int64
	for rows.Next() {
		var detail Detail
		if err := rows.Scan(&detail.ID, &detail.Number, &detail.VendorID, &detail.OrderDate, &detail.Status,
			&detail.TotalAmount, &detail.CreatedAt, &detail.UpdatedAt, &detail.VendorCode, &detail.VendorName); err != nil {
			return nil, 0, err
		}
		out = append(out, detail)
		ids = append(ids, detail.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		summaries, err := r.categorySummaries(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range out {
			out[i].CategorySummary = summaries[out[i].ID]
		}
	}
	return out, total, nil
}

// UpdateStatus moves an order to the given state.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeTotal refreshes total_amount from the stored line subtotals.
func (r *Repository) RecomputeTotal(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE purchase_orders SET total_amount = COALESCE(
			(SELECT SUM(subtotal) FROM purchase_order_items WHERE purchase_order_id = $1), 0),
			updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// VendorExists reports whether an active vendor with the id is present.
func (r *Repository) VendorExists(ctx context.Context, vendorID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vendors WHERE id = $1 AND is_active)`, vendorID).Scan(&exists)
	return exists, err
}

// ItemExists reports whether the referenced catalog row is present.
func (r *Repository) ItemExists(ctx context.Context, ref catalog.ItemRef) (bool, error) {
	table := "products"
	if ref.Kind == catalog.KindMedicine {
		table = "medicines"
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, ref.ID).Scan(&exists)
	return exists, err
}
