package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"session-service/config"
	"session-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRelayDefaults(t *testing.T) {
	c := &RedisClient{client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}
	defer c.Close()

	relay := NewSignalRelay(c, "", logger.Nop())
	assert.Equal(t, "session_signals", relay.channel)

	err := relay.Listen(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	_, err := NewRedisClient(&config.RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

// Requires a Redis server; set TEST_REDIS_HOST to run.
func TestSignalRelayRoundTrip(t *testing.T) {
	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("TEST_REDIS_HOST not set")
	}
	port := os.Getenv("TEST_REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	c, err := NewRedisClient(&config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "test_signals_" + time.Now().Format("150405.000000")
	listener := NewSignalRelay(c, channel, logger.Nop())
	received := make(chan []byte, 1)
	require.NoError(t, listener.Listen(ctx, func(payload []byte) { received <- payload }))

	require.NoError(t, NewSignalRelay(c, channel, logger.Nop()).Publish(ctx, []byte(`{"type":"feedback_added"}`)))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"type":"feedback_added"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("relay payload not received")
	}
}
