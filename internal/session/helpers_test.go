package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	engine "github.com/hanpama/gqlws/internal/engine"
	protocol "github.com/hanpama/gqlws/internal/protocol"
	"github.com/stretchr/testify/require"
)

// recordingSink collects every sent frame.
type recordingSink struct {
	mu     sync.Mutex
	msgs   []protocol.Message
	closed bool
}

func (r *recordingSink) Send(m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("sink closed")
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recordingSink) messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func (r *recordingSink) waitFor(t *testing.T, n int) []protocol.Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.messages()) >= n }, 2*time.Second, time.Millisecond,
		"expected at least %d frames", n)
	return r.messages()
}

func (r *recordingSink) forID(id string) []protocol.Message {
	var out []protocol.Message
	for _, m := range r.messages() {
		if m.ID == id {
			out = append(out, m)
		}
	}
	return out
}

// chanStream yields whatever is pushed on ch; closing ch ends the stream
// with err, or io.EOF when err is nil.
type chanStream struct {
	ch     chan *engine.Result
	err    error
	mu     sync.Mutex
	closed bool
}

func newChanStream() *chanStream { return &chanStream{ch: make(chan *engine.Result)} }

func (c *chanStream) Next(ctx context.Context) (*engine.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-c.ch:
		if !ok {
			if c.err != nil {
				return nil, c.err
			}
			return nil, io.EOF
		}
		return r, nil
	}
}

func (c *chanStream) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *chanStream) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeEngine dispatches Subscribe to a test function and records requests.
type fakeEngine struct {
	mu        sync.Mutex
	requests  []engine.Request
	subscribe func(ctx context.Context, req engine.Request) (engine.Stream, error)
}

func (f *fakeEngine) Execute(ctx context.Context, req engine.Request) *engine.Result {
	return &engine.Result{}
}

func (f *fakeEngine) Subscribe(ctx context.Context, req engine.Request) (engine.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.subscribe(ctx, req)
}

func (f *fakeEngine) lastRequest() engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// streamsByQuery hands out a preconfigured stream per query text.
func streamsByQuery(streams map[string]engine.Stream) func(context.Context, engine.Request) (engine.Stream, error) {
	return func(_ context.Context, req engine.Request) (engine.Stream, error) {
		if s, ok := streams[req.Query]; ok {
			return s, nil
		}
		return nil, engine.NewError(errors.New("unknown query " + req.Query))
	}
}

func newTestSession(t *testing.T, eng engine.Engine, opts ...Option) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s := New(context.Background(), "conn-1", eng, engine.NewValues(map[string]any{"tenant": "t1"}), sink, opts...)
	t.Cleanup(func() {
		s.Disconnect()
		s.Wait()
	})
	return s, sink
}

func frame(s string) []byte { return []byte(s) }

func ack(t *testing.T, s *Session, sink *recordingSink) {
	t.Helper()
	s.HandleFrame(frame(`{"type":"connection_init"}`))
	msgs := sink.waitFor(t, 1)
	require.Equal(t, protocol.TypeConnectionAck, msgs[0].Type)
}

func types(msgs []protocol.Message) []protocol.Type {
	out := make([]protocol.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}
