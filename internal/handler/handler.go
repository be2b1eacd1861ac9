// Package handler exposes the order service over HTTP.
package handler

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/domain/order"
)

// OrderService is the order use-case surface the handler calls.
type OrderService interface {
	PlaceOrder(ctx context.Context, caller auth.Identity, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	UpdateStatus(ctx context.Context, caller auth.Identity, id string, target order.Status) (*order.Order, error)
	Delete(ctx context.Context, caller auth.Identity, id string) error
	Get(ctx context.Context, caller auth.Identity, id string) (*order.Order, error)
	ListByUser(ctx context.Context, caller auth.Identity, userID string) ([]order.Order, error)
	ListAll(ctx context.Context, caller auth.Identity) ([]order.Order, error)
}

// CouponPreviewer computes a coupon discount without consuming it.
type CouponPreviewer interface {
	Preview(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*coupon.Discount, error)
}

var (
	_ OrderService    = (*order.Service)(nil)
	_ CouponPreviewer = (*coupon.Validator)(nil)
)

// Handler serves the order and coupon endpoints.
type Handler struct {
	orders  OrderService
	coupons CouponPreviewer
}

// NewHandler constructs a Handler.
func NewHandler(orders OrderService, coupons CouponPreviewer) *Handler {
	return &Handler{orders: orders, coupons: coupons}
}
