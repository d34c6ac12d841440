package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists booking entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProvisionStore inserts a store and its first manager in one transaction.
func (r *Repository) ProvisionStore(ctx context.Context, store Store, manager StoreManager) (Store, StoreManager, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Store{}, StoreManager{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO stores (id, name, address, phone, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		store.ID, store.Name, store.Address, store.Phone, store.IsActive).Scan(&store.CreatedAt)
	if err != nil {
		return Store{}, StoreManager{}, err
	}

	manager.StoreID = store.ID
	err = tx.QueryRow(ctx, `
		INSERT INTO store_managers (id, store_id, name, phone, passcode_hash, category_ids, service_ids, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		manager.ID, manager.StoreID, manager.Name, manager.Phone, manager.PasscodeHash,
		manager.CategoryIDs, manager.ServiceIDs, manager.IsActive).Scan(&manager.CreatedAt)
	if err != nil {
		return Store{}, StoreManager{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Store{}, StoreManager{}, err
	}
	return store, manager, nil
}

// GetStore fetches one store.
func (r *Repository) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	var store Store
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, address, phone, is_active, created_at FROM stores WHERE id = $1`, id).
		Scan(&store.ID, &store.Name, &store.Address, &store.Phone, &store.IsActive, &store.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, ErrNotFound
	}
	return store, err
}

// GetManager fetches one manager.
func (r *Repository) GetManager(ctx context.Context, id uuid.UUID) (StoreManager, error) {
	var m StoreManager
	err := r.pool.QueryRow(ctx, `
		SELECT id, store_id, name, phone, passcode_hash, category_ids, service_ids, is_active, created_at
		FROM store_managers WHERE id = $1`, id).
		Scan(&m.ID, &m.StoreID, &m.Name, &m.Phone, &m.PasscodeHash, &m.CategoryIDs, &m.ServiceIDs, &m.IsActive, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoreManager{}, ErrNotFound
	}
	return m, err
}

// SetManagerActive toggles a manager.
func (r *Repository) SetManagerActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE store_managers SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertCustomer finds a customer by phone or creates one.
func (r *Repository) UpsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, phone, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING id, created_at`,
		c.ID, c.Name, c.Phone, c.Email).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

// CreateServiceCategory inserts a category.
func (r *Repository) CreateServiceCategory(ctx context.Context, c ServiceCategory) (ServiceCategory, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO service_categories (name, is_active) VALUES ($1, $2) RETURNING id`,
		c.Name, c.IsActive).Scan(&c.ID)
	return c, err
}

// ListServiceCategories returns every category.
func (r *Repository) ListServiceCategories(ctx context.Context) ([]ServiceCategory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, is_active FROM service_categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceCategory
	for rows.Next() {
		var c ServiceCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateOffering inserts a bookable service.
func (r *Repository) CreateOffering(ctx context.Context, o Offering) (Offering, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO offerings (category_id, name, duration_mins, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		o.CategoryID, o.Name, o.DurationMins, o.IsActive).Scan(&o.ID)
	return o, err
}

// ListOfferings returns offerings, optionally restricted to one category.
func (r *Repository) ListOfferings(ctx context.Context, categoryID int64) ([]Offering, error) {
	query := `SELECT id, category_id, name, duration_mins, is_active FROM offerings`
	args := []any{}
	if categoryID > 0 {
		query += ` WHERE category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offering
	for rows.Next() {
		var o Offering
		if err := rows.Scan(&o.ID, &o.CategoryID, &o.Name, &o.DurationMins, &o.IsActive); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreateTimeSlot inserts a slot.
func (r *Repository) CreateTimeSlot(ctx context.Context, s TimeSlot) (TimeSlot, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO time_slots (label, is_active) VALUES ($1, $2) RETURNING id`,
		s.Label, s.IsActive).Scan(&s.ID)
	return s, err
}

// ListTimeSlots returns every slot.
func (r *Repository) ListTimeSlots(ctx context.Context) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, label, is_active FROM time_slots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeSlot
	for rows.Next() {
		var s TimeSlot
		if err := rows.Scan(&s.ID, &s.Label, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOffering fetches one bookable service.
func (r *Repository) GetOffering(ctx context.Context, id int64) (Offering, error) {
	var o Offering
	err := r.pool.QueryRow(ctx,
		`SELECT id, category_id, name, duration_mins, is_active FROM offerings WHERE id = $1`, id).
		Scan(&o.ID, &o.CategoryID, &o.Name, &o.DurationMins, &o.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Offering{}, ErrNotFound
	}
	return o, err
}

// SlotExists reports whether the time slot is registered and active.
func (r *Repository) SlotExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1 AND is_active)`, id).Scan(&exists)
	return exists, err
}

// CreateBooking inserts a booking.
func (r *Repository) CreateBooking(ctx context.Context, b Booking) (Booking, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, customer_id, store_id, category_id, service_id, type, date, slot_id, status, alert_type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		b.ID, b.CustomerID, b.StoreID, b.CategoryID, b.ServiceID, b.Type, b.Date, b.SlotID,
		b.Status, b.AlertType, b.Notes).Scan(&b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const bookingColumns = `id, customer_id, store_id, category_id, service_id, type, date, slot_id, status, alert_type, notes, created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.CustomerID, &b.StoreID, &b.CategoryID, &b.ServiceID, &b.Type,
		&b.Date, &b.SlotID, &b.Status, &b.AlertType, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

// GetBooking fetches one booking.
func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// Search returns bookings matching the filter with a total count.
func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]Booking, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	idx := 1
	add := func(cond string, value any) {
		conditions = append(conditions, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}
	if filter.CustomerName != "" {
		add("c.name ILIKE '%%' || $%d || '%%'", filter.CustomerName)
	}
	if filter.StoreID != nil {
		add("b.store_id = $%d", *filter.StoreID)
	}
	if filter.Status != "" {
		add("b.status = $%d", filter.Status)
	}
	if filter.ServiceID != nil {
		add("b.service_id = $%d", *filter.ServiceID)
	}
	if filter.DateFrom != nil {
		add("b.date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("b.date <= $%d", *filter.DateTo)
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM bookings b JOIN customers c ON c.id = b.customer_id WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT b.id, b.customer_id, b.store_id, b.category_id, b.service_id, b.type, b.date,
			b.slot_id, b.status, b.alert_type, b.notes, b.created_at, b.updated_at
		FROM bookings b
		JOIN customers c ON c.id = b.customer_id
		WHERE %s ORDER BY b.date DESC, b.created_at DESC LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// UpdateStatus moves a booking to the next state and appends the status log
// entry in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, actor string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusTransition
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_status_logs (booking_id, from_status, to_status, actor)
		VALUES ($1, $2, $3, $4)`, id, from, to, actor); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// StatusHistory returns the append-only status trail of a booking.
func (r *Repository) StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor, at
		FROM appointment_status_logs WHERE booking_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusLog
	for rows.Next() {
		var entry StatusLog
		if err := rows.Scan(&entry.ID, &entry.BookingID, &entry.From, &entry.To, &entry.Actor, &entry.At); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
