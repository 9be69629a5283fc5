package realtime

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSBus implements Bus on core NATS subjects.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSBus builds a bus whose subjects are namespaced under prefix.
func NewNATSBus(conn *nats.Conn, prefix string, logger zerolog.Logger) *NATSBus {
	return &NATSBus{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "nats_bus").Logger(),
	}
}

func (b *NATSBus) subject(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + "." + topic
}

func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.conn.IsClosed() {
		return ErrBusClosed
	}
	if err := b.conn.Publish(b.subject(topic), payload); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	if b.conn.IsClosed() {
		return nil, nil, ErrBusClosed
	}

	messages := make(chan *nats.Msg, subscriberBuffer)
	sub, err := b.conn.ChanSubscribe(b.subject(topic), messages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("failed to confirm subscription to %s: %w", topic, err)
	}

	out := make(chan []byte, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Debug().Err(err).Str("topic", topic).Msg("failed to unsubscribe")
			}
		}()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg := <-messages:
				select {
				case out <- msg.Data:
				default:
					b.logger.Warn().Str("topic", topic).Msg("dropping realtime event for slow subscriber")
				}
			}
		}
	}()

	return out, cancel, nil
}
