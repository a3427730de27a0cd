// Package notify fans out analysis-completed events to connected observers
// over one shared Redis pub/sub channel. Publishing is fire-and-forget: no
// acknowledgment, no delivery guarantee, no cross-publisher ordering.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channel = "feedback:events"

// Event is the broadcast payload.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Broker publishes to and subscribes from the shared feedback group.
type Broker struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *zap.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Broker{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, logger *zap.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// Publish broadcasts one event. Failures are logged and swallowed; a slow or
// absent subscriber must never affect the publisher's request.
func (b *Broker) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal event", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.logger.Warn("publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// Subscribe joins the shared group and streams events until cancel is called
// or ctx ends. Malformed payloads are dropped.
func (b *Broker) Subscribe(ctx context.Context) (<-chan Event, func()) {
	pubsub := b.client.Subscribe(ctx, channel)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("drop malformed event payload", zap.Error(err))
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return events, cancel
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broker) Close() error {
	return b.client.Close()
}
