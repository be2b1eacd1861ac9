package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/burgershop/order-service/internal/domain/coupon"
)

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore implements coupon.Store in memory. Codes are matched
// case-insensitively.
type CouponStore struct {
	mu     sync.RWMutex
	byID   map[string]*coupon.Coupon
	byCode map[string]string
}

// NewCouponStore returns a CouponStore holding coupons.
func NewCouponStore(coupons ...coupon.Coupon) *CouponStore {
	s := &CouponStore{
		byID:   make(map[string]*coupon.Coupon),
		byCode: make(map[string]string),
	}
	for _, c := range coupons {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a coupon.
func (s *CouponStore) Put(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = &c
	s.byCode[strings.ToUpper(c.Code)] = c.ID
}

func (s *CouponStore) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *CouponStore) FindByID(_ context.Context, id string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Consume flips the used flag only if it is still false.
func (s *CouponStore) Consume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.Used {
		return coupon.ErrConsumeConflict
	}
	c.Used = true
	return nil
}
