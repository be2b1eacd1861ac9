package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/burgershop/order-service/internal/domain/coupon"
)

var _ coupon.Store = (*CouponStore)(nil)

const couponColumns = `id, code, assigned_to, discount_type, value, expires_at, used, prize_name`

// CouponStore implements coupon.Store backed by PostgreSQL.
type CouponStore struct {
	db DB
}

// NewCouponStore returns a CouponStore that uses db.
func NewCouponStore(db DB) *CouponStore {
	return &CouponStore{db: db}
}

// FindByCode looks up a coupon by code, ignoring case.
func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE UPPER(code) = UPPER($1)`, code)
	c, err := scanCoupon(row)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon by code %q", code)
	}
	return c, nil
}

// FindByID looks up a coupon by its identifier.
func (s *CouponStore) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
	c, err := scanCoupon(row)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", id)
	}
	return c, nil
}

// Consume marks the coupon used, conditioned on it being unused.
func (s *CouponStore) Consume(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE coupons SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return errors.Wrapf(err, "consume coupon %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the coupon was already used or it is gone.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check coupon %q", id)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrConsumeConflict
}

// Insert stores c unless a coupon with the same code exists. It reports
// whether a row was written.
func (s *CouponStore) Insert(ctx context.Context, c coupon.Coupon) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`,
		c.ID, c.Code, c.AssignedTo, string(c.DiscountType), c.Value, c.ExpiresAt, c.Used, c.PrizeName,
	)
	if err != nil {
		return false, errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(&c.ID, &c.Code, &c.AssignedTo, &typ, &c.Value, &c.ExpiresAt, &c.Used, &c.PrizeName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, err
	}
	c.DiscountType = coupon.DiscountType(typ)
	return &c, nil
}
