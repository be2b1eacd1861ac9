package notify

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/auth"
)

// DefaultQueueSize is the per-connection outbound buffer used when
// HubOptions.QueueSize is zero.
const DefaultQueueSize = 64

// ErrClosed is returned when joining a group on a disconnected Conn.
var ErrClosed = errors.New("connection closed")

// Conn is a single connected client. Outbound messages are queued on a
// bounded buffer drained by exactly one writer, so delivery to a Conn is in
// publish order.
type Conn struct {
	ID       string
	Identity auth.Identity

	send   chan []byte
	groups map[string]struct{} // guarded by Hub.mu
	closed bool                // guarded by Hub.mu
}

// NewConn creates a Conn with a queue of the given size.
func NewConn(id auth.Identity, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Conn{
		ID:       uuid.NewString(),
		Identity: id,
		send:     make(chan []byte, queueSize),
		groups:   make(map[string]struct{}),
	}
}

// Messages returns the outbound queue. It is closed on Hub.Disconnect.
func (c *Conn) Messages() <-chan []byte {
	return c.send
}

// HubOptions configures a Hub.
type HubOptions struct {
	Logger        *zap.Logger
	QueueSize     int
	MeterProvider metric.MeterProvider
}

func (o *HubOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
}

// Hub is the registry of broadcast groups. Membership of a group is the set
// of connections that joined it and have not disconnected since.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Conn]struct{}
	conns  map[*Conn]struct{}

	lg        *zap.Logger
	queueSize int

	delivered   metric.Int64Counter
	dropped     metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

// NewHub creates an empty Hub.
func NewHub(opts HubOptions) (*Hub, error) {
	opts.setDefaults()
	meter := opts.MeterProvider.Meter("github.com/burgershop/order-service/internal/notify")

	h := &Hub{
		groups:    make(map[string]map[*Conn]struct{}),
		conns:     make(map[*Conn]struct{}),
		lg:        opts.Logger,
		queueSize: opts.QueueSize,
	}
	var err error
	if h.delivered, err = meter.Int64Counter("notify.delivered",
		metric.WithDescription("Messages queued to subscribers"),
	); err != nil {
		return nil, errors.Wrap(err, "delivered counter")
	}
	if h.dropped, err = meter.Int64Counter("notify.dropped",
		metric.WithDescription("Messages dropped because the subscriber queue was full"),
	); err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}
	if h.subscribers, err = meter.Int64UpDownCounter("notify.subscribers",
		metric.WithDescription("Current group memberships"),
	); err != nil {
		return nil, errors.Wrap(err, "subscribers counter")
	}
	return h, nil
}

// NewConn creates a Conn sized by the Hub's queue option and tracks it until
// Disconnect, so Close can reach connections that never joined a group.
func (h *Hub) NewConn(id auth.Identity) *Conn {
	c := NewConn(id, h.queueSize)
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Join adds c to group. Joining a group twice is a no-op.
func (h *Hub) Join(c *Conn, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.groups[group]; ok {
		return nil
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Conn]struct{})
		h.groups[group] = members
	}
	members[c] = struct{}{}
	c.groups[group] = struct{}{}
	h.subscribers.Add(context.Background(), 1, metric.WithAttributes(attribute.String("group", group)))
	return nil
}

// Leave removes c from group.
func (h *Hub) Leave(c *Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, group)
}

func (h *Hub) leave(c *Conn, group string) {
	if _, ok := c.groups[group]; !ok {
		return
	}
	delete(c.groups, group)
	members := h.groups[group]
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
	h.subscribers.Add(context.Background(), -1, metric.WithAttributes(attribute.String("group", group)))
}

// Disconnect removes c from every group and closes its queue. It is safe to
// call more than once.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnect(c)
}

func (h *Hub) disconnect(c *Conn) {
	if c.closed {
		return
	}
	for group := range c.groups {
		h.leave(c, group)
	}
	delete(h.conns, c)
	c.closed = true
	close(c.send)
}

// Close disconnects every connection. Writers observe their closed queue
// and end the session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		h.disconnect(c)
	}
	for _, members := range h.groups {
		for c := range members {
			h.disconnect(c)
		}
	}
}

// Members returns the number of connections currently in group.
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Publish encodes ev and broadcasts it to group. See Broadcast.
func (h *Hub) Publish(group string, ev Event) {
	h.Broadcast(group, Marshal(ev))
}

// Broadcast queues payload on every member of group and returns the number
// of members it was queued on. It never blocks: a member whose queue is full
// misses the message. An empty or unknown group is not an error.
func (h *Hub) Broadcast(group string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[group]
	if len(members) == 0 {
		return 0
	}

	var delivered, dropped int64
	for c := range members {
		select {
		case c.send <- payload:
			delivered++
		default:
			dropped++
			h.lg.Debug("Subscriber queue full, dropping message",
				zap.String("group", group),
				zap.String("conn_id", c.ID),
			)
		}
	}

	attrs := metric.WithAttributes(attribute.String("group", group))
	ctx := context.Background()
	if delivered > 0 {
		h.delivered.Add(ctx, delivered, attrs)
	}
	if dropped > 0 {
		h.dropped.Add(ctx, dropped, attrs)
	}
	return int(delivered)
}

// Send queues payload on c alone, dropping it if the queue is full or c is
// disconnected.
func (h *Hub) Send(c *Conn, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}
