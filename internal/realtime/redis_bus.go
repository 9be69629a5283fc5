package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus implements Bus on Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisBus builds a bus whose channels are namespaced under prefix.
func NewRedisBus(client *redis.Client, prefix string, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis_bus").Logger(),
	}
}

func (b *RedisBus) channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + ":" + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(topic))
	// Receive blocks until the subscription is confirmed so no publish is missed afterwards.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan []byte, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Warn().Str("topic", topic).Msg("dropping realtime event for slow subscriber")
				}
			}
		}
	}()

	return out, cancel, nil
}
