package order

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// NewOrderEvent is the wire name of NewOrderNotification.
const NewOrderEvent = "new_order"

// NewOrderNotification announces a freshly created order to administrators.
type NewOrderNotification struct {
	OrderID     string
	TotalAmount decimal.Decimal
	Timestamp   time.Time
	Message     string
}

// NewNotification builds the notification for o.
func NewNotification(o *Order) NewOrderNotification {
	return NewOrderNotification{
		OrderID:     o.ID,
		TotalAmount: o.Total,
		Timestamp:   o.CreatedAt,
		Message:     Summary(o.ID),
	}
}

// Summary returns the human-readable announcement for order id.
func Summary(id string) string {
	short := id
	if len(short) > 6 {
		short = short[len(short)-6:]
	}
	return "New order #" + short + " received!"
}

// EventName implements notify.Event.
func (NewOrderNotification) EventName() string { return NewOrderEvent }

// Encode implements notify.Event.
func (n NewOrderNotification) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.Field("orderId", func(e *jx.Encoder) { e.Str(n.OrderID) })
	e.Field("totalAmount", func(e *jx.Encoder) { e.Float64(n.TotalAmount.InexactFloat64()) })
	e.Field("timestamp", func(e *jx.Encoder) { e.Str(n.Timestamp.UTC().Format(time.RFC3339Nano)) })
	e.Field("message", func(e *jx.Encoder) { e.Str(n.Message) })
	e.ObjEnd()
}
