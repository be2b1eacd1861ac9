package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon may be used by a given user. Validation
// has no side effects; consumption is a separate Store.Consume call.
type Validator struct {
	store Store
	calc  Calculator
	now   func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator backed by store.
func NewValidator(store Store, calc Calculator, opts ...ValidatorOption) *Validator {
	v := &Validator{store: store, calc: calc, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate looks up the coupon by its presentable code and checks, in order,
// ownership, consumption and expiry.
func (v *Validator) Validate(ctx context.Context, code, userID string) (*Coupon, error) {
	c, err := v.store.FindByCode(ctx, code)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := v.check(c, userID); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateID is Validate for a coupon referenced by its system identifier.
func (v *Validator) ValidateID(ctx context.Context, id, userID string) (*Coupon, error) {
	c, err := v.store.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := v.check(c, userID); err != nil {
		return nil, err
	}
	return c, nil
}

// Preview validates the coupon and computes its discount against subtotal
// without consuming it.
func (v *Validator) Preview(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Discount, error) {
	c, err := v.Validate(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	d, err := v.calc.Apply(c, subtotal)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (v *Validator) check(c *Coupon, userID string) error {
	if c.AssignedTo != userID {
		return ErrNotAssigned
	}
	if c.Used {
		return ErrAlreadyUsed
	}
	if !c.ExpiresAt.After(v.now()) {
		return ErrExpired
	}
	return nil
}

func lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, "lookup coupon")
}
