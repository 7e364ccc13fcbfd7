package pubsub

import (
	"context"
	"sync"
)

// DefaultBuffer is the per-subscriber queue length of the memory broker.
const DefaultBuffer = 16

// Memory is an in-process broker. A subscriber whose queue is full misses
// the payload; publishers never block.
type Memory struct {
	mu      sync.Mutex
	topics  map[string]map[*Subscription]chan struct{}
	buffer  int
	closed  bool
	dropped uint64
}

// NewMemory creates an in-process broker.
func NewMemory() *Memory {
	return &Memory{topics: map[string]map[*Subscription]chan struct{}{}, buffer: DefaultBuffer}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for sub := range m.topics[topic] {
		select {
		case sub.c <- payload:
		default:
			m.dropped++
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	done := make(chan struct{})
	var sub *Subscription
	sub = newSubscription(m.buffer, func() error {
		m.remove(topic, sub)
		return nil
	})
	if m.topics[topic] == nil {
		m.topics[topic] = map[*Subscription]chan struct{}{}
	}
	m.topics[topic][sub] = done
	sub.closeOnDone(ctx, done)
	return sub, nil
}

func (m *Memory) remove(topic string, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	done, ok := m.topics[topic][sub]
	if !ok {
		return
	}
	delete(m.topics[topic], sub)
	if len(m.topics[topic]) == 0 {
		delete(m.topics, topic)
	}
	close(done)
	close(sub.c)
}

// Dropped reports how many payloads were lost to full subscriber queues.
func (m *Memory) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close ends every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	var subs []*Subscription
	for _, set := range m.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
