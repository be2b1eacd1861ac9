// Package memory provides in-process stores for running the service without
// a database.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/burgershop/order-service/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository in memory.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*order.Order)}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return errors.Errorf("order %q already exists", o.ID)
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.UserID == userID }), nil
}

func (r *OrderRepository) List(_ context.Context) ([]order.Order, error) {
	return r.list(func(*order.Order) bool { return true }), nil
}

func (r *OrderRepository) list(keep func(*order.Order) bool) []order.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// UpdateStatus checks the terminal guard and writes under the same lock.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, order.ErrFinalized
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return cloneOrder(o), nil
}

func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Address = slices.Clone(o.Address)
	return &c
}
