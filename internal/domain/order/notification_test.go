package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/burgershop/order-service/internal/notify"
)

func TestSummary(t *testing.T) {
	assert.Equal(t, "New order #abc123 received!", Summary("64f1e2d3abc123"))
	assert.Equal(t, "New order #ab received!", Summary("ab"))
}

func TestNewOrderNotification_Wire(t *testing.T) {
	o := &Order{
		ID:        "0198c0de-0000-7000-8000-00000a1b2c3d",
		Total:     decimal.RequireFromString("900.50"),
		CreatedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	got := notify.Marshal(NewNotification(o))
	assert.JSONEq(t, `{
		"event": "new_order",
		"data": {
			"orderId": "0198c0de-0000-7000-8000-00000a1b2c3d",
			"totalAmount": 900.5,
			"timestamp": "2025-06-15T12:00:00Z",
			"message": "New order #1b2c3d received!"
		}
	}`, string(got))
}

func TestCanTransition(t *testing.T) {
	for _, from := range Statuses {
		for _, to := range Statuses {
			assert.Equal(t, from != StatusDelivered, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition(StatusPending, "lost"))
}
