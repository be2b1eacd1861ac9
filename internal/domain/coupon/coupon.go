package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFlat takes a fixed monetary amount off the subtotal.
	DiscountFlat DiscountType = "flat"
	// DiscountPercentage takes a fraction (0..1) of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFreeItem is worth one complimentary item of fixed value.
	DiscountFreeItem DiscountType = "free_item"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountFlat, DiscountPercentage, DiscountFreeItem:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when no coupon matches the given code or id.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrNotAssigned is returned when the coupon belongs to another user.
	ErrNotAssigned = errors.New("coupon is not assigned to this account")
	// ErrAlreadyUsed is returned when the coupon has been consumed.
	ErrAlreadyUsed = errors.New("coupon has already been used")
	// ErrExpired is returned when the coupon expiry is not after now.
	ErrExpired = errors.New("coupon has expired")
	// ErrConsumeConflict is returned by Store.Consume when the coupon was
	// already consumed at write time.
	ErrConsumeConflict = errors.New("coupon already consumed")
)

// Coupon is a single-use, user-assigned discount token.
type Coupon struct {
	ID           string
	Code         string
	AssignedTo   string
	DiscountType DiscountType
	Value        decimal.Decimal
	ExpiresAt    time.Time
	Used         bool
	PrizeName    string
}

// Discount is the computed, clamped discount for a cart subtotal.
type Discount struct {
	Amount    decimal.Decimal
	PrizeName string
	CouponID  string
}

// Store provides lookup of coupons and the one-way consumption write.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id string) (*Coupon, error)
	// Consume flips the consumed flag from false to true. It returns
	// ErrConsumeConflict when the flag was already true at write time and
	// ErrNotFound when the coupon does not exist.
	Consume(ctx context.Context, id string) error
}
