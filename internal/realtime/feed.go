package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedRunning is returned by Start on a feed that has not been stopped.
var ErrFeedRunning = errors.New("feed already running")

// LoadFunc reads the current state of the watched collection.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is one observation of the watched collection.
type Snapshot[T any] struct {
	Value T
	Err   error
}

// Feed turns change events on a topic into a lazy sequence of snapshots.
// The consumer owns the lifecycle: Start, read, Stop, and Start again if needed.
type Feed[T any] struct {
	bus   Bus
	topic string
	load  LoadFunc[T]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a stopped feed.
func NewFeed[T any](bus Bus, topic string, load LoadFunc[T]) *Feed[T] {
	return &Feed[T]{bus: bus, topic: topic, load: load}
}

// Topic returns the topic the feed listens on.
func (f *Feed[T]) Topic() string {
	return f.topic
}

// Start subscribes to the topic and returns the snapshot channel. The first
// snapshot is the initial load; each change event yields another one. Events
// arriving while the consumer is behind are coalesced into a single reload.
func (f *Feed[T]) Start(ctx context.Context) (<-chan Snapshot[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		return nil, ErrFeedRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe, err := f.bus.Subscribe(runCtx, f.topic)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Snapshot[T])
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done

	go f.run(runCtx, events, unsubscribe, out, done)

	return out, nil
}

// Stop cancels the subscription and waits for the feed goroutine to exit.
func (f *Feed[T]) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the feed is started.
func (f *Feed[T]) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

func (f *Feed[T]) run(ctx context.Context, events <-chan []byte, unsubscribe func(), out chan<- Snapshot[T], done chan<- struct{}) {
	defer close(done)
	defer close(out)
	defer unsubscribe()

	if !f.emit(ctx, out) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if !drain(events) {
				return
			}
			if !f.emit(ctx, out) {
				return
			}
		}
	}
}

func (f *Feed[T]) emit(ctx context.Context, out chan<- Snapshot[T]) bool {
	value, err := f.load(ctx)
	if ctx.Err() != nil {
		return false
	}

	select {
	case out <- Snapshot[T]{Value: value, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain discards queued events; it returns false when the channel is closed.
func drain(events <-chan []byte) bool {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
