package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultFreeItemValue is the value of one complimentary item.
var DefaultFreeItemValue = decimal.NewFromInt(300)

var zero = decimal.Zero

// Calculator computes coupon discounts. The zero value uses
// DefaultFreeItemValue for free-item coupons.
type Calculator struct {
	FreeItemValue decimal.Decimal
}

// NewCalculator returns a Calculator valuing free items at freeItem.
func NewCalculator(freeItem decimal.Decimal) Calculator {
	return Calculator{FreeItemValue: freeItem}
}

// Amount returns the discount for a coupon of type t and value against
// subtotal. The result is never negative and never exceeds subtotal.
func (c Calculator) Amount(t DiscountType, value, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch t {
	case DiscountFlat:
		amount = value
	case DiscountPercentage:
		amount = subtotal.Mul(value).Round(2)
	case DiscountFreeItem:
		amount = c.freeItemValue()
	default:
		return zero, errors.Errorf("unsupported discount type: %q", t)
	}
	return clamp(amount, subtotal), nil
}

// Apply computes the discount of cp against subtotal. It does not check
// whether cp is usable; see Validator.
func (c Calculator) Apply(cp *Coupon, subtotal decimal.Decimal) (Discount, error) {
	amount, err := c.Amount(cp.DiscountType, cp.Value, subtotal)
	if err != nil {
		return Discount{}, err
	}
	return Discount{
		Amount:    amount,
		PrizeName: cp.PrizeName,
		CouponID:  cp.ID,
	}, nil
}

func (c Calculator) freeItemValue() decimal.Decimal {
	if c.FreeItemValue.IsZero() {
		return DefaultFreeItemValue
	}
	return c.FreeItemValue
}

// clamp bounds amount to [0, max(subtotal, 0)].
func clamp(amount, subtotal decimal.Decimal) decimal.Decimal {
	limit := decimal.Max(subtotal, zero)
	return decimal.Min(decimal.Max(amount, zero), limit)
}
