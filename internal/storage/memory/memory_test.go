package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/domain/order"
)

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	r := NewOrderRepository()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	o1 := &order.Order{
		ID:        "o1",
		UserID:    "u1",
		Items:     []order.Item{{Name: "Burger", Price: decimal.NewFromInt(300), Quantity: 1}},
		Total:     decimal.NewFromInt(300),
		Address:   order.Address(`{"city":"Springfield"}`),
		Status:    order.StatusPending,
		CreatedAt: now.Add(-time.Hour),
	}
	o2 := &order.Order{ID: "o2", UserID: "u1", Status: order.StatusPending, CreatedAt: now}
	o3 := &order.Order{ID: "o3", UserID: "u2", Status: order.StatusPending, CreatedAt: now.Add(-time.Minute)}
	for _, o := range []*order.Order{o1, o2, o3} {
		require.NoError(t, r.Create(ctx, o))
	}
	require.Error(t, r.Create(ctx, o1), "duplicate id")

	// Stored copies are isolated from the caller.
	o1.Address[9] = 'X'
	got, err := r.Get(ctx, "o1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Springfield"}`, string(got.Address))

	mine, err := r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "o2", mine[0].ID)

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"o2", "o3", "o1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	updated, err := r.UpdateStatus(ctx, "o1", order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, updated.Status)

	_, err = r.UpdateStatus(ctx, "o1", order.StatusPending)
	require.ErrorIs(t, err, order.ErrFinalized)
	got, err = r.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)

	_, err = r.UpdateStatus(ctx, "missing", order.StatusPending)
	require.ErrorIs(t, err, order.ErrNotFound)

	require.NoError(t, r.Delete(ctx, "o1"))
	require.ErrorIs(t, r.Delete(ctx, "o1"), order.ErrNotFound)
	_, err = r.Get(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCouponStore(t *testing.T) {
	ctx := context.Background()
	s := NewCouponStore(coupon.Coupon{ID: "c1", Code: "SAVE10", AssignedTo: "u1"})

	c, err := s.FindByCode(ctx, "save10")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = s.FindByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	require.NoError(t, s.Consume(ctx, "c1"))
	require.ErrorIs(t, s.Consume(ctx, "c1"), coupon.ErrConsumeConflict)
	require.ErrorIs(t, s.Consume(ctx, "missing"), coupon.ErrNotFound)

	c, err = s.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.Used)
}

func TestCouponStore_ConsumeIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewCouponStore(coupon.Coupon{ID: "c1", Code: "SAVE10"})

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(ctx, "c1") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestAPIKeyRepository(t *testing.T) {
	r := NewAPIKeyRepository()
	r.Add(auth.APIKeyInfo{ID: "k1", KeyHash: "abc", UserID: "u1", Role: auth.RoleAdmin})

	info, err := r.FindByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", Role: auth.RoleAdmin}, info.Identity())

	_, err = r.FindByHash(context.Background(), "def")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}
