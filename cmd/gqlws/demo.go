package main

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc/metadata"

	executor "github.com/hanpama/gqlws/internal/executor"
	headers "github.com/hanpama/gqlws/internal/headers"
	language "github.com/hanpama/gqlws/internal/language"
	pubsub "github.com/hanpama/gqlws/internal/pubsub"
)

const demoSDL = `type Query {
  hello(name: String): String!
  requestId: String
}

type Mutation {
  publish(channel: String!, text: String!): Message!
}

type Subscription {
  count(to: Int!, intervalMs: Int): Int!
  messages(channel: String!): Message!
}

type Message {
  channel: String!
  text: String!
  at: String!
}
`

const defaultCountInterval = time.Second

// demo serves the built-in schema. Messages travel through broker so that
// publish on one instance reaches subscribers on every instance sharing it.
type demo struct {
	broker pubsub.Broker
	now    func() time.Time
}

func topic(channel string) string { return "messages:" + channel }

func newDemoExecutor(broker pubsub.Broker) (*executor.Executor, error) {
	sch, err := language.LoadSchema("demo.graphql", demoSDL)
	if err != nil {
		return nil, err
	}
	d := &demo{broker: broker, now: time.Now}
	return executor.New(sch, executor.Config{
		Resolvers: map[string]executor.Resolver{
			executor.Key("Query", "hello"):      d.hello,
			executor.Key("Query", "requestId"):  d.requestID,
			executor.Key("Mutation", "publish"): d.publish,
		},
		Sources: map[string]executor.SourceResolver{
			executor.Key("Subscription", "count"):    d.count,
			executor.Key("Subscription", "messages"): d.messages,
		},
	}), nil
}

func (d *demo) hello(_ context.Context, _ any, args map[string]any) (any, error) {
	name, ok := executor.ArgString(args, "name")
	if !ok || name == "" {
		name = "world"
	}
	return "Hello, " + name + "!", nil
}

// requestID echoes the id forwarded in outgoing metadata, as a resolver
// calling a gRPC backend would send it.
func (d *demo) requestID(ctx context.Context, _ any, _ map[string]any) (any, error) {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return nil, nil
	}
	if v := md.Get(headers.RequestIDKey); len(v) > 0 {
		return v[0], nil
	}
	return nil, nil
}

func (d *demo) publish(ctx context.Context, _ any, args map[string]any) (any, error) {
	channel, _ := executor.ArgString(args, "channel")
	text, _ := executor.ArgString(args, "text")
	msg := map[string]any{
		"channel": channel,
		"text":    text,
		"at":      d.now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := d.broker.Publish(ctx, topic(channel), payload); err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *demo) count(ctx context.Context, args map[string]any) (<-chan any, error) {
	to, _ := executor.ArgInt(args, "to")
	interval := defaultCountInterval
	if ms, ok := executor.ArgInt(args, "intervalMs"); ok && ms >= 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	out := make(chan any)
	go func() {
		defer close(out)
		for i := 1; i <= to; i++ {
			if i > 1 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *demo) messages(ctx context.Context, args map[string]any) (<-chan any, error) {
	channel, _ := executor.ArgString(args, "channel")
	sub, err := d.broker.Subscribe(ctx, topic(channel))
	if err != nil {
		return nil, err
	}
	out := make(chan any)
	go func() {
		defer close(out)
		defer sub.Close()
		for payload := range sub.C() {
			var msg map[string]any
			if err := json.Unmarshal(payload, &msg); err != nil {
				select {
				case out <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
