package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"session-service/config"
	"session-service/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig

	// amqp channels are not safe for concurrent publishing.
	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitMQClient(cfg *config.RabbitMQConfig) (*RabbitMQClient, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/",
		cfg.User, cfg.Password, cfg.Host, cfg.Port)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQClient{
		conn:     conn,
		channel:  channel,
		config:   cfg,
		declared: make(map[string]bool),
	}, nil
}

func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *RabbitMQClient) declareQueue(name string) error {
	if c.declared[name] {
		return nil
	}
	_, err := c.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}
	c.declared[name] = true
	return nil
}

func (c *RabbitMQClient) Publish(ctx context.Context, queueName string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.declareQueue(queueName); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	return c.channel.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// LifecyclePublisher sends session lifecycle events to a single queue.
type LifecyclePublisher struct {
	publisher Publisher
	queue     string
}

func NewLifecyclePublisher(p Publisher, queue string) *LifecyclePublisher {
	return &LifecyclePublisher{publisher: p, queue: queue}
}

func (p *LifecyclePublisher) PublishLifecycle(ctx context.Context, ev models.LifecycleEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode lifecycle event: %w", err)
	}
	if err := p.publisher.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}
