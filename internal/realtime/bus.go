// Package realtime carries change notifications between writers and live subscribers.
package realtime

import (
	"context"
	"errors"
	"strings"
)

// ErrBusClosed is returned when publishing on or subscribing to a closed bus.
var ErrBusClosed = errors.New("realtime bus closed")

// Bus publishes small change events on named topics.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe delivers payloads for topic until ctx is cancelled or the returned cancel func runs.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
}

// Topic joins topic segments with dots.
func Topic(parts ...string) string {
	return strings.Join(parts, ".")
}

const subscriberBuffer = 16
