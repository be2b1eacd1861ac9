package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/burgershop/order-service/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, user_id, items, total, address, payment_method, status, COALESCE(coupon_id, ''), created_at, updated_at`

// OrderRepository implements order.Repository backed by PostgreSQL. Items and
// address are stored as JSONB.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	var couponID *string
	if o.CouponID != "" {
		couponID = &o.CouponID
	}

	if _, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, user_id, items, total, address, payment_method, status, coupon_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, items, o.Total, []byte(o.Address), string(o.PaymentMethod), string(o.Status),
		couponID, o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get returns order id or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return out, nil
}

// UpdateStatus writes the status in a single statement that excludes
// delivered orders, so the terminal guard holds against concurrent updates.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> 'delivered'
		RETURNING `+orderColumns,
		id, string(status),
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, errors.Wrapf(err, "update order %q", id)
	}

	// No row matched: the order is missing or already delivered.
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, order.ErrFinalized
}

// Delete removes the order unconditionally.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                     order.Order
		items, address        []byte
		paymentMethod, status string
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &o.Total, &address,
		&paymentMethod, &status, &o.CouponID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	o.Address = order.Address(address)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.Status = order.Status(status)
	return &o, nil
}
