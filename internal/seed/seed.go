// Package seed holds the demo fixtures loaded by cmd/seed and by the
// in-memory storage mode.
package seed

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
)

// CouponTTL is how long demo coupons stay valid after seeding.
const CouponTTL = 30 * 24 * time.Hour

// Coupons returns the demo coupons assigned to userID. Codes are fixed so
// re-seeding is idempotent.
func Coupons(userID string, now time.Time) []coupon.Coupon {
	expires := now.Add(CouponTTL).UTC()
	return []coupon.Coupon{
		{
			ID:           "coupon-save10",
			Code:         "SAVE10",
			AssignedTo:   userID,
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.RequireFromString("0.10"),
			ExpiresAt:    expires,
			PrizeName:    "10% off",
		},
		{
			ID:           "coupon-freeburger",
			Code:         "FREEBURGER",
			AssignedTo:   userID,
			DiscountType: coupon.DiscountFreeItem,
			ExpiresAt:    expires,
			PrizeName:    "Free Burger",
		},
		{
			ID:           "coupon-flat50",
			Code:         "FLAT50",
			AssignedTo:   userID,
			DiscountType: coupon.DiscountFlat,
			Value:        decimal.NewFromInt(50),
			ExpiresAt:    expires,
			PrizeName:    "50 off",
		},
	}
}

// Key is a plaintext API key together with the identity it resolves to.
type Key struct {
	Plaintext string
	Name      string
	Identity  auth.Identity
}

// Info returns the stored form of k, hashed with pepper.
func (k Key) Info(pepper []byte) auth.APIKeyInfo {
	hash := auth.HashKey(pepper, k.Plaintext)
	return auth.APIKeyInfo{
		ID:      "key-" + hash[:12],
		KeyHash: hash,
		Name:    k.Name,
		UserID:  k.Identity.UserID,
		Role:    k.Identity.Role,
	}
}

// Keys returns the admin and customer keys to seed. Empty plaintexts are
// skipped.
func Keys(adminKey, customerKey, customerID string) []Key {
	var keys []Key
	if adminKey != "" {
		keys = append(keys, Key{
			Plaintext: adminKey,
			Name:      "Storefront admin",
			Identity:  auth.Identity{UserID: "admin", Role: auth.RoleAdmin},
		})
	}
	if customerKey != "" {
		keys = append(keys, Key{
			Plaintext: customerKey,
			Name:      "Demo customer",
			Identity:  auth.Identity{UserID: customerID, Role: auth.RoleCustomer},
		})
	}
	return keys
}
