package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists vendors in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vendorColumns = `id, code, name, address, mobile, email, gst, categories, payment_terms, credit_days, is_active, created_at, updated_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Code, &v.Name, &v.Address, &v.Mobile, &v.Email, &v.GST,
		&v.Categories, &v.PaymentTerms, &v.CreditDays, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, ErrNotFound
	}
	return v, err
}

// Create inserts a vendor and returns it with identifiers populated.
func (r *Repository) Create(ctx context.Context, v Vendor) (Vendor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO vendors (code, name, address, mobile, email, gst, categories, payment_terms, credit_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+vendorColumns,
		v.Code, v.Name, v.Address, v.Mobile, v.Email, v.GST, v.Categories, v.PaymentTerms, v.CreditDays, v.IsActive)
	return scanVendor(row)
}

// Get fetches one vendor by id.
func (r *Repository) Get(ctx context.Context, id int64) (Vendor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	return scanVendor(row)
}

// GetByCode fetches one vendor by public code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Vendor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE code = $1`, code)
	return scanVendor(row)
}

// List returns vendors matching the filter with a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	idx := 1
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(categories)", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *filter.IsActive)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM vendors WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`, vendorColumns, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Update rewrites vendor mutable fields.
func (r *Repository) Update(ctx context.Context, id int64, v Vendor) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE vendors SET name = $1, address = $2, mobile = $3, email = $4, gst = $5,
			categories = $6, payment_terms = $7, credit_days = $8, is_active = $9, updated_at = NOW()
		WHERE id = $10`,
		v.Name, v.Address, v.Mobile, v.Email, v.GST, v.Categories, v.PaymentTerms, v.CreditDays, v.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SuggestByCategory returns active vendors servicing any of the category
// names. The overlap operator deduplicates at the row level already.
func (r *Repository) SuggestByCategory(ctx context.Context, names []string) ([]VendorRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name FROM vendors
		WHERE is_active AND categories && $1
		ORDER BY name`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VendorRef
	for rows.Next() {
		var ref VendorRef
		if err := rows.Scan(&ref.ID, &ref.Code, &ref.Name); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
