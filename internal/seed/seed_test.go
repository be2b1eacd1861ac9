package seed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/storage/memory"
)

func TestCoupons_Discounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewCouponStore(Coupons("u1", now)...)
	v := coupon.NewValidator(store, coupon.NewCalculator(coupon.DefaultFreeItemValue),
		coupon.WithClock(func() time.Time { return now.Add(time.Hour) }),
	)

	for _, tt := range []struct {
		code     string
		subtotal string
		want     string
	}{
		{code: "SAVE10", subtotal: "1000.00", want: "100"},
		{code: "FREEBURGER", subtotal: "250.00", want: "250"},
		{code: "flat50", subtotal: "20", want: "20"},
	} {
		t.Run(tt.code, func(t *testing.T) {
			d, err := v.Preview(context.Background(), tt.code, "u1", decimal.RequireFromString(tt.subtotal))
			require.NoError(t, err)
			assert.True(t, d.Amount.Equal(decimal.RequireFromString(tt.want)), d.Amount.String())
		})
	}
}

func TestCoupons_ExpireAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewCouponStore(Coupons("u1", now)...)
	v := coupon.NewValidator(store, coupon.Calculator{},
		coupon.WithClock(func() time.Time { return now.Add(CouponTTL) }),
	)

	_, err := v.Validate(context.Background(), "SAVE10", "u1")
	assert.ErrorIs(t, err, coupon.ErrExpired)
}

func TestKeys(t *testing.T) {
	pepper := []byte("pepper")
	keys := Keys("adm", "", "u1")
	require.Len(t, keys, 1)

	info := keys[0].Info(pepper)
	assert.Equal(t, auth.RoleAdmin, info.Role)
	assert.Equal(t, auth.HashKey(pepper, "adm"), info.KeyHash)
	assert.Equal(t, "admin", info.Identity().UserID)

	assert.Len(t, Keys("adm", "cust", "u1"), 2)
}
