package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a broker backed by Redis PUBLISH and SUBSCRIBE, so events reach
// subscribers connected to any server instance.
type Redis struct {
	client *redis.Client
	buffer int
}

// NewRedis connects to the server at url (redis://...) and pings it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, buffer: DefaultBuffer}, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)
	// Wait for the subscription to be confirmed so that nothing published
	// after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	done := make(chan struct{})
	sub := newSubscription(r.buffer, func() error {
		close(done)
		return ps.Close()
	})
	go func() {
		defer close(sub.c)
		ch := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.c <- []byte(msg.Payload):
				case <-done:
					return
				}
			}
		}
	}()
	sub.closeOnDone(ctx, done)
	return sub, nil
}

func (r *Redis) Close() error { return r.client.Close() }
