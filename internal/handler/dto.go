package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/domain/order"
)

type itemRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type placeOrderRequest struct {
	Items         []itemRequest       `json:"items"`
	TotalAmount   decimal.NullDecimal `json:"totalAmount"`
	Total         decimal.NullDecimal `json:"total"`
	Address       order.Address       `json:"address"`
	PaymentMethod string              `json:"paymentMethod"`
	CouponID      string              `json:"couponId"`
}

func (r placeOrderRequest) toDomain() order.PlaceOrderRequest {
	total := r.TotalAmount
	if !total.Valid {
		total = r.Total
	}
	items := make([]order.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = order.Item{Name: it.Name, Price: it.Price, Quantity: it.Quantity}
	}
	return order.PlaceOrderRequest{
		Items:         items,
		Total:         total,
		Address:       r.Address,
		PaymentMethod: order.PaymentMethod(r.PaymentMethod),
		CouponID:      r.CouponID,
	}
}

type placeOrderResponse struct {
	Message string `json:"message"`
	OrderID string `json:"orderId"`
}

// updateStatusRequest also accepts newStatus, the field name older clients send.
type updateStatusRequest struct {
	Status    string `json:"status"`
	NewStatus string `json:"newStatus"`
}

func (r updateStatusRequest) target() order.Status {
	if r.Status != "" {
		return order.Status(r.Status)
	}
	return order.Status(r.NewStatus)
}

type updateStatusResponse struct {
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}

type applyCouponRequest struct {
	Code      string              `json:"code"`
	CartTotal decimal.NullDecimal `json:"cartTotal"`
}

type applyCouponResponse struct {
	Success   bool        `json:"success"`
	Discount  json.Number `json:"discount"`
	PrizeName string      `json:"prizeName"`
	CouponID  string      `json:"couponId"`
}

func toApplyCouponResponse(d *coupon.Discount) applyCouponResponse {
	return applyCouponResponse{
		Success:   true,
		Discount:  money(d.Amount),
		PrizeName: d.PrizeName,
		CouponID:  d.CouponID,
	}
}

type itemResponse struct {
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

type orderResponse struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Items         []itemResponse    `json:"items"`
	TotalAmount   json.Number       `json:"totalAmount"`
	Address       order.Address     `json:"address"`
	PaymentMethod string            `json:"paymentMethod"`
	Status        string            `json:"status"`
	CouponID      string            `json:"couponId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemResponse{Name: it.Name, Price: money(it.Price), Quantity: it.Quantity}
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         items,
		TotalAmount:   money(o.Total),
		Address:       o.Address,
		PaymentMethod: string(o.PaymentMethod),
		Status:        string(o.Status),
		CouponID:      o.CouponID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toOrderList(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
