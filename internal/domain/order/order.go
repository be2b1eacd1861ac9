package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors returned by the order Service and Repository.
var (
	ErrNotFound  = errors.New("order not found")
	ErrFinalized = errors.New("order has been delivered and can no longer be updated")
)

// InvalidInputError indicates a required field of a request is missing or
// malformed.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IntegrityFaultError records a coupon that could not be consumed after the
// order referencing it was already created.
type IntegrityFaultError struct {
	OrderID  string
	CouponID string
	Err      error
}

func (e *IntegrityFaultError) Error() string {
	return fmt.Sprintf("order %s: consume coupon %s: %v", e.OrderID, e.CouponID, e.Err)
}

func (e *IntegrityFaultError) Unwrap() error { return e.Err }

// PaymentMethod is the tag describing how an order is paid.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCard           PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentCard
}

// Item is a single line of an order.
type Item struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Address is an opaque structured delivery address kept as raw JSON. Any
// JSON value is accepted: an object, a nested object or a plain string.
type Address []byte

// MarshalJSON implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	*a = append((*a)[:0], data...)
	return nil
}

// Empty reports whether a carries no address: absent, null, "", {} or [].
func (a Address) Empty() bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, a); err != nil {
		return len(bytes.TrimSpace(a)) == 0
	}
	switch buf.String() {
	case "null", `""`, "{}", "[]":
		return true
	}
	return false
}

// Order is a placed customer order. Total is fixed at creation and already
// reflects any discount.
type Order struct {
	ID            string
	UserID        string
	Items         []Item
	Total         decimal.Decimal
	Address       Address
	PaymentMethod PaymentMethod
	Status        Status
	CouponID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines persistence operations for orders. List methods return
// newest orders first.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus writes status unless the stored order is already
	// delivered, in which case it returns ErrFinalized without changes.
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	Delete(ctx context.Context, id string) error
}
