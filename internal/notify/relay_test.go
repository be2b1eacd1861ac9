package notify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recordingClient captures publishes. Each call sleeps a little so that any
// concurrent sender would interleave.
type recordingClient struct {
	mu       sync.Mutex
	channels []string
	payloads []string
	err      error
}

func (c *recordingClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channel)
	c.payloads = append(c.payloads, string(message.([]byte)))
	return redis.NewIntResult(1, c.err)
}

func (c *recordingClient) Subscribe(context.Context, ...string) *redis.PubSub {
	panic("not used")
}

func (c *recordingClient) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func startRelay(t *testing.T, b *RedisBridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.relay(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRedisBridge_RelaysInPublishOrder(t *testing.T) {
	const total = 500
	client := &recordingClient{}
	b, err := NewRedisBridge(client, newTestHub(t, 4), BridgeOptions{QueueSize: total})
	require.NoError(t, err)
	startRelay(t, b)

	for i := range total {
		b.Publish("admin", testEvent{N: i})
	}

	require.Eventually(t, func() bool {
		return len(client.published()) == total
	}, 10*time.Second, 10*time.Millisecond)

	for i, p := range client.published() {
		require.JSONEq(t, fmt.Sprintf(`{"event":"test","data":{"n":%d}}`, i), p, "event %d", i)
	}
	assert.Equal(t, Channel("admin"), client.channels[0])
}

func TestRedisBridge_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := &recordingClient{}
	b, err := NewRedisBridge(client, newTestHub(t, 4), BridgeOptions{Logger: zap.New(core), QueueSize: 2})
	require.NoError(t, err)

	for i := range 5 {
		b.Publish("admin", testEvent{N: i})
	}
	assert.Len(t, b.queue, 2)
	assert.Equal(t, 3, logs.FilterMessage("Relay queue full, dropping event").Len())

	startRelay(t, b)
	require.Eventually(t, func() bool {
		return len(client.published()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"event":"test","data":{"n":0}}`, client.published()[0])
	assert.JSONEq(t, `{"event":"test","data":{"n":1}}`, client.published()[1])
}

func TestRedisBridge_FailedPublishIsNotDeliveredLocally(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := &recordingClient{err: errors.New("connection refused")}
	hub := newTestHub(t, 4)
	c := hub.NewConn(admin)
	require.NoError(t, hub.Join(c, "admin"))

	b, err := NewRedisBridge(client, hub, BridgeOptions{Logger: zap.New(core)})
	require.NoError(t, err)
	startRelay(t, b)

	b.Publish("admin", testEvent{N: 1})
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Relay publish failed, dropping event").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, drain(c))
}

func TestRedisBridge_RunRequiresGroups(t *testing.T) {
	b, err := NewRedisBridge(&recordingClient{}, newTestHub(t, 4), BridgeOptions{})
	require.NoError(t, err)
	require.Error(t, b.Run(context.Background()))
}
