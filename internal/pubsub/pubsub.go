// Package pubsub carries events from mutations to subscription sources.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("pubsub: broker closed")

// Broker fans out payloads published on a topic to its subscribers.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a subscriber. The subscription is closed when ctx
	// is done or Close is called.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription delivers the payloads of one topic.
type Subscription struct {
	c       chan []byte
	once    sync.Once
	release func() error
	err     error
}

func newSubscription(buffer int, release func() error) *Subscription {
	return &Subscription{c: make(chan []byte, buffer), release: release}
}

// C is closed once the subscription ends.
func (s *Subscription) C() <-chan []byte { return s.c }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() { s.err = s.release() })
	return s.err
}

// closeOnDone ends s when ctx is done.
func (s *Subscription) closeOnDone(ctx context.Context, done <-chan struct{}) {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()
}
