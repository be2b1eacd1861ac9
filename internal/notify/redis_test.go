//go:build integration

package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newBridge(t *testing.T, client *redis.Client, hub *Hub) *RedisBridge {
	t.Helper()
	b, err := NewRedisBridge(client, hub, BridgeOptions{})
	require.NoError(t, err)
	return b
}

func TestRedisBridge_FansOutAcrossInstances(t *testing.T) {
	const total = 100
	client := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, hubB := newTestHub(t, total), newTestHub(t, total)
	bridgeA, bridgeB := newBridge(t, client, hubA), newBridge(t, client, hubB)

	done := make(chan error, 2)
	go func() { done <- bridgeA.Run(ctx, "admin") }()
	go func() { done <- bridgeB.Run(ctx, "admin") }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, Channel("admin")).Result()
		return err == nil && n[Channel("admin")] == 2
	}, 10*time.Second, 50*time.Millisecond)

	a, b := hubA.NewConn(admin), hubB.NewConn(admin)
	require.NoError(t, hubA.Join(a, "admin"))
	require.NoError(t, hubB.Join(b, "admin"))

	for i := range total {
		bridgeA.Publish("admin", testEvent{N: i})
	}

	for _, c := range []*Conn{a, b} {
		for i := range total {
			select {
			case msg := <-c.Messages():
				require.JSONEq(t, fmt.Sprintf(`{"event":"test","data":{"n":%d}}`, i), string(msg))
			case <-time.After(5 * time.Second):
				t.Fatalf("message %d not relayed", i)
			}
		}
	}

	cancel()
	for range 2 {
		assert.NoError(t, <-done)
	}
}
