package grn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbill/flowbill/internal/catalog"
)

// Repository persists receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the engine's transactional surface. Every mutation of a
// receipt call happens through one of these, inside one transaction.
type TxRepository interface {
	FindByRequestID(ctx context.Context, requestID string) (GRN, error)
	GetPOForUpdate(ctx context.Context, poID int64) (POSnapshot, error)
	InsertGRN(ctx context.Context, g GRN) (GRN, error)
	InsertItems(ctx context.Context, grnID int64, items []GRNItem) error
	AcceptedTotalsByItem(ctx context.Context, poID int64) (map[catalog.ItemRef]int64, error)
	IncrementStock(ctx context.Context, ref catalog.ItemRef, delta int64) (int64, error)
	UpdatePOStatus(ctx context.Context, poID int64, status string) error
	Finalize(ctx context.Context, grnID int64, status Status, confirmedAt time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside one REPEATABLE READ transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const grnColumns = `id, number, type, purchase_order_id, dispatch_id, status, request_id, created_at, confirmed_at`

func scanGRN(row pgx.Row) (GRN, error) {
	var g GRN
	err := row.Scan(&g.ID, &g.Number, &g.Type, &g.POID, &g.DispatchID, &g.Status, &g.RequestID, &g.CreatedAt, &g.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GRN{}, ErrNotFound
	}
	return g, err
}

func findByRequestID(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, requestID string) (GRN, error) {
	row := q.QueryRow(ctx, `SELECT `+grnColumns+` FROM grns WHERE request_id = $1`, requestID)
	return scanGRN(row)
}

// FindByRequestID looks up a receipt outside any transaction.
func (r *Repository) FindByRequestID(ctx context.Context, requestID string) (GRN, error) {
	return findByRequestID(ctx, r.pool, requestID)
}

// Get fetches a receipt with its items.
func (r *Repository) Get(ctx context.Context, id int64) (GRN, error) {
	g, err := scanGRN(r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM grns WHERE id = $1`, id))
	if err != nil {
		return GRN{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, grn_id, purchase_order_item_id, item_kind, item_id, batch_no, expiry_date,
			accepted_qty, rejected_qty, uom, reason
		FROM grn_items WHERE grn_id = $1 ORDER BY id`, id)
	if err != nil {
		return GRN{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.POItemID, &item.Item.Kind, &item.Item.ID,
			&item.BatchNo, &item.ExpiryDate, &item.AcceptedQty, &item.RejectedQty, &item.UOM, &item.Reason); err != nil {
			return GRN{}, err
		}
		g.Items = append(g.Items, item)
	}
	return g, rows.Err()
}

func (t *txRepo) FindByRequestID(ctx context.Context, requestID string) (GRN, error) {
	return findByRequestID(ctx, t.tx, requestID)
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, poID int64) (POSnapshot, error) {
	var snap POSnapshot
	err := t.tx.QueryRow(ctx,
		`SELECT id, status FROM purchase_orders WHERE id = $1 FOR UPDATE`, poID).
		Scan(&snap.ID, &snap.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return POSnapshot{}, ErrPONotFound
	}
	if err != nil {
		return POSnapshot{}, err
	}

	rows, err := t.tx.Query(ctx,
		`SELECT id, item_kind, item_id, qty FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`, poID)
	if err != nil {
		return POSnapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.Item.Kind, &line.Item.ID, &line.Qty); err != nil {
			return POSnapshot{}, err
		}
		snap.Lines = append(snap.Lines, line)
	}
	return snap, rows.Err()
}

func (t *txRepo) InsertGRN(ctx context.Context, g GRN) (GRN, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO grns (number, type, purchase_order_id, dispatch_id, status, request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+grnColumns,
		g.Number, g.Type, g.POID, g.DispatchID, g.Status, g.RequestID)
	created, err := scanGRN(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return GRN{}, errDuplicateRequest
		}
		return GRN{}, err
	}
	return created, nil
}

func (t *txRepo) InsertItems(ctx context.Context, grnID int64, items []GRNItem) error {
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, []any{
			grnID, item.POItemID, item.Item.Kind, item.Item.ID, item.BatchNo,
			item.ExpiryDate, item.AcceptedQty, item.RejectedQty, item.UOM, item.Reason,
		})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"grn_items"},
		[]string{"grn_id", "purchase_order_item_id", "item_kind", "item_id", "batch_no",
			"expiry_date", "accepted_qty", "rejected_qty", "uom", "reason"},
		pgx.CopyFromRows(rows))
	return err
}

func (t *txRepo) AcceptedTotalsByItem(ctx context.Context, poID int64) (map[catalog.ItemRef]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT gi.item_kind, gi.item_id, SUM(gi.accepted_qty)
		FROM grn_items gi
		JOIN grns g ON g.id = gi.grn_id
		WHERE g.purchase_order_id = $1
		GROUP BY gi.item_kind, gi.item_id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[catalog.ItemRef]int64{}
	for rows.Next() {
		var ref catalog.ItemRef
		var sum int64
		if err := rows.Scan(&ref.Kind, &ref.ID, &sum); err != nil {
			return nil, err
		}
		totals[ref] = sum
	}
	return totals, rows.Err()
}

func (t *txRepo) IncrementStock(ctx context.Context, ref catalog.ItemRef, delta int64) (int64, error) {
	table := "products"
	if ref.Kind == catalog.KindMedicine {
		table = "medicines"
	}
	var stock int64
	err := t.tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET stock = stock + $1, updated_at = NOW() WHERE id = $2 RETURNING stock`, table),
		delta, ref.ID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return stock, err
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, poID int64, status string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, poID)
	return err
}

func (t *txRepo) Finalize(ctx context.Context, grnID int64, status Status, confirmedAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE grns SET status = $1, confirmed_at = $2 WHERE id = $3`, status, confirmedAt, grnID)
	return err
}
