package cache

import (
	"context"
	"fmt"
	"time"

	"session-service/config"
	"session-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: cfg,
	}, nil
}

func (c *RedisClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SignalRelay forwards broadcaster events between nodes over a Redis pub/sub
// channel.
type SignalRelay struct {
	log     *logger.Logger
	client  *redis.Client
	channel string
}

func NewSignalRelay(c *RedisClient, channel string, log *logger.Logger) *SignalRelay {
	if channel == "" {
		channel = "session_signals"
	}
	return &SignalRelay{
		log:     log.With("component", "RedisSignalRelay"),
		client:  c.client,
		channel: channel,
	}
}

func (r *SignalRelay) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Listen subscribes to the channel and hands every payload to handle until
// ctx is cancelled.
func (r *SignalRelay) Listen(ctx context.Context, handle func(payload []byte)) error {
	if handle == nil {
		return fmt.Errorf("handle callback required")
	}
	sub := r.client.Subscribe(ctx, r.channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					r.log.Warn("redis signal subscription closed")
					_ = sub.Close()
					return
				}
				handle([]byte(m.Payload))
			}
		}
	}()

	return nil
}
