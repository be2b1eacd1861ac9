package notify

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const channelPrefix = "notify:"

// publishTimeout bounds a single relay publish.
const publishTimeout = 2 * time.Second

// DefaultRelayQueueSize is the outbound relay buffer used when
// BridgeOptions.QueueSize is zero.
const DefaultRelayQueueSize = 256

// RedisClient is the part of *redis.Client the bridge uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// BridgeOptions configures a RedisBridge.
type BridgeOptions struct {
	Logger        *zap.Logger
	QueueSize     int
	MeterProvider metric.MeterProvider
}

func (o *BridgeOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultRelayQueueSize
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
}

type relayMsg struct {
	group   string
	payload []byte
}

// RedisBridge relays published events through Redis pub/sub so that members
// connected to any instance receive them. Every instance runs the bridge and
// delivers what it receives to its local Hub.
//
// Outbound events go through a bounded queue drained by a single goroutine,
// so one instance's events reach Redis in publish order. Events are dropped,
// never delivered twice, when the queue is full or Redis rejects them.
type RedisBridge struct {
	client RedisClient
	hub    *Hub
	lg     *zap.Logger
	queue  chan relayMsg

	dropped metric.Int64Counter
	failed  metric.Int64Counter
}

// NewRedisBridge creates a bridge between client and hub. Nothing is relayed
// until Run is called.
func NewRedisBridge(client RedisClient, hub *Hub, opts BridgeOptions) (*RedisBridge, error) {
	opts.setDefaults()
	meter := opts.MeterProvider.Meter("github.com/burgershop/order-service/internal/notify")

	b := &RedisBridge{
		client: client,
		hub:    hub,
		lg:     opts.Logger,
		queue:  make(chan relayMsg, opts.QueueSize),
	}
	var err error
	if b.dropped, err = meter.Int64Counter("notify.relay_dropped",
		metric.WithDescription("Events dropped because the relay queue was full"),
	); err != nil {
		return nil, errors.Wrap(err, "relay dropped counter")
	}
	if b.failed, err = meter.Int64Counter("notify.relay_failed",
		metric.WithDescription("Events Redis failed to accept"),
	); err != nil {
		return nil, errors.Wrap(err, "relay failed counter")
	}
	return b, nil
}

// Channel returns the Redis channel carrying group.
func Channel(group string) string {
	return channelPrefix + group
}

// Publish queues ev for relay to group on every instance. It never blocks.
func (b *RedisBridge) Publish(group string, ev Event) {
	select {
	case b.queue <- relayMsg{group: group, payload: Marshal(ev)}:
	default:
		b.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("group", group)))
		b.lg.Warn("Relay queue full, dropping event",
			zap.String("group", group),
			zap.String("event", ev.EventName()),
		)
	}
}

// Run relays queued events and forwards payloads received on groups to the
// local Hub until ctx is done. Events still queued at that point are dropped.
func (b *RedisBridge) Run(ctx context.Context, groups ...string) error {
	if len(groups) == 0 {
		return errors.New("no groups to relay")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.subscribe(gctx, groups)
	})
	g.Go(func() error {
		b.relay(gctx)
		return nil
	})
	return g.Wait()
}

func (b *RedisBridge) relay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			b.send(ctx, msg)
		}
	}
}

func (b *RedisBridge) send(ctx context.Context, msg relayMsg) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, Channel(msg.group), msg.payload).Err(); err != nil {
		b.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("group", msg.group)))
		b.lg.Warn("Relay publish failed, dropping event",
			zap.String("group", msg.group),
			zap.Error(err),
		)
	}
}

func (b *RedisBridge) subscribe(ctx context.Context, groups []string) error {
	channels := make([]string, len(groups))
	for i, g := range groups {
		channels[i] = Channel(g)
	}

	sub := b.client.Subscribe(ctx, channels...)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "subscribe")
	}
	b.lg.Info("Relay subscribed", zap.Strings("channels", channels))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			group := strings.TrimPrefix(msg.Channel, channelPrefix)
			n := b.hub.Broadcast(group, []byte(msg.Payload))
			b.lg.Debug("Relayed message",
				zap.String("group", group),
				zap.Int("delivered", n),
			)
		}
	}
}
