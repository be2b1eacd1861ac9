package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/notify"
)

const instrumentationName = "github.com/burgershop/order-service/internal/domain/order"

// DefaultGroup is the broadcast group new-order notifications go to.
const DefaultGroup = "admin"

// Publisher delivers an event to the current members of a group. Publish
// must not block on subscribers.
type Publisher interface {
	Publish(group string, ev notify.Event)
}

// CouponChecker re-validates a coupon referenced by id at submission time.
type CouponChecker interface {
	ValidateID(ctx context.Context, id, userID string) (*coupon.Coupon, error)
}

// PlaceOrderRequest holds the input for placing an order. The caller's
// identity supplies the owning user.
type PlaceOrderRequest struct {
	Items         []Item
	Total         decimal.NullDecimal
	Address       Address
	PaymentMethod PaymentMethod
	CouponID      string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	// CouponFault is set when the order was placed but its coupon could not
	// be consumed. It is for operators, not for the submitting client.
	CouponFault error
}

// Option configures a Service.
type Option func(*Service)

// WithGroup overrides the notification group.
func WithGroup(group string) Option {
	return func(s *Service) { s.group = group }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates order submission and the status lifecycle.
type Service struct {
	orders    Repository
	coupons   coupon.Store
	checker   CouponChecker
	publisher Publisher

	group  string
	now    func() time.Time
	tracer trace.Tracer
	meter  metric.Meter

	placed          metric.Int64Counter
	integrityFaults metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	coupons coupon.Store,
	checker CouponChecker,
	publisher Publisher,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		orders:    orders,
		coupons:   coupons,
		checker:   checker,
		publisher: publisher,
		group:     DefaultGroup,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:     metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.integrityFaults, err = s.meter.Int64Counter("coupons.integrity_faults",
		metric.WithDescription("Orders whose coupon could not be consumed after creation"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.integrity_faults counter")
	}
	return s, nil
}

func validatePlaceOrder(caller auth.Identity, req PlaceOrderRequest) error {
	if caller.UserID == "" {
		return &InvalidInputError{Field: "userId"}
	}
	if len(req.Items) == 0 {
		return &InvalidInputError{Field: "items"}
	}
	for _, it := range req.Items {
		switch {
		case it.Name == "":
			return &InvalidInputError{Field: "items.name"}
		case it.Price.IsNegative():
			return &InvalidInputError{Field: "items.price", Reason: "must not be negative"}
		case it.Quantity < 1:
			return &InvalidInputError{Field: "items.quantity", Reason: "must be at least 1"}
		}
	}
	if !req.Total.Valid {
		return &InvalidInputError{Field: "totalAmount"}
	}
	if req.Total.Decimal.IsNegative() {
		return &InvalidInputError{Field: "totalAmount", Reason: "must not be negative"}
	}
	if req.Address.Empty() {
		return &InvalidInputError{Field: "address"}
	}
	if !json.Valid(req.Address) {
		return &InvalidInputError{Field: "address", Reason: "must be valid JSON"}
	}
	if req.PaymentMethod == "" {
		return &InvalidInputError{Field: "paymentMethod"}
	}
	if !req.PaymentMethod.Valid() {
		return &InvalidInputError{Field: "paymentMethod", Reason: "unsupported value"}
	}
	return nil
}

// PlaceOrder creates a pending order for caller, consumes its coupon and
// announces the order to the notification group.
//
// A coupon that fails to be consumed after the order was created does not
// fail the call; the fault is logged and returned in the result.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Identity, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() { endSpan(span, rerr) }()

	if err := validatePlaceOrder(caller, req); err != nil {
		return nil, err
	}

	if req.CouponID != "" {
		if _, err := s.checker.ValidateID(ctx, req.CouponID, caller.UserID); err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        caller.UserID,
		Items:         req.Items,
		Total:         req.Total.Decimal,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Status:        StatusPending,
		CouponID:      req.CouponID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	s.placed.Add(ctx, 1)

	res := &PlaceOrderResult{Order: o}
	if o.CouponID != "" {
		res.CouponFault = s.consumeCoupon(ctx, o)
	}

	s.publisher.Publish(s.group, NewNotification(o))

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
	)
	return res, nil
}

// consumeCoupon marks the order's coupon consumed. The order already exists,
// so this runs to completion even if the request is cancelled.
func (s *Service) consumeCoupon(ctx context.Context, o *Order) error {
	ctx = context.WithoutCancel(ctx)

	err := s.coupons.Consume(ctx, o.CouponID)
	if err == nil {
		return nil
	}

	fault := &IntegrityFaultError{OrderID: o.ID, CouponID: o.CouponID, Err: err}
	fields := []zap.Field{
		zap.String("order_id", o.ID),
		zap.String("coupon_id", o.CouponID),
		zap.String("user_id", o.UserID),
		zap.Error(err),
	}
	lg := zctx.From(ctx)
	if errors.Is(err, coupon.ErrConsumeConflict) {
		lg.Error("Coupon integrity fault: coupon consumed by a concurrent order", fields...)
	} else {
		lg.Error("Coupon integrity fault: coupon consumption failed", fields...)
	}
	s.integrityFaults.Add(ctx, 1)
	return fault
}

// UpdateStatus moves an order to target. Only administrators may do so, and
// a delivered order can never change again.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Identity, id string, target Status) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", id),
			attribute.String("order.status", string(target)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if current.Status.Terminal() {
		return nil, ErrFinalized
	}
	if !CanTransition(current.Status, target) {
		return nil, &InvalidInputError{Field: "status", Reason: "unsupported value"}
	}

	// The repository re-checks the terminal guard at write time.
	updated, err := s.orders.UpdateStatus(ctx, id, target)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(target)),
	)
	return updated, nil
}

// Delete removes an order unconditionally. Only administrators may do so.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if !caller.IsAdmin() {
		return auth.ErrForbidden
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	zctx.From(ctx).Info("Order deleted", zap.String("order_id", id))
	return nil
}

// Get returns an order visible to caller.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !caller.CanAccess(o.UserID) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// ListByUser returns the orders of userID, newest first.
func (s *Service) ListByUser(ctx context.Context, caller auth.Identity, userID string) ([]Order, error) {
	if !caller.CanAccess(userID) {
		return nil, auth.ErrForbidden
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListAll returns every order, newest first. Only administrators may do so.
func (s *Service) ListAll(ctx context.Context, caller auth.Identity) ([]Order, error) {
	if !caller.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
