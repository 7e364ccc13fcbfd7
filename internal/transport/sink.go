package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
	protocol "github.com/hanpama/gqlws/internal/protocol"
	"github.com/gorilla/websocket"
)

// ErrSinkClosed is returned by Send once the connection is shutting down.
var ErrSinkClosed = errors.New("transport: sink closed")

// frameWriter is the subset of *websocket.Conn used by the writer.
type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// sink queues outbound frames for a single writer goroutine. gorilla
// connections support one concurrent writer, so every frame of every
// operation goes through here.
type sink struct {
	connID       string
	w            frameWriter
	out          chan protocol.Message
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
}

func newSink(connID string, w frameWriter, buffer int, writeTimeout time.Duration) *sink {
	return &sink{
		connID:       connID,
		w:            w,
		out:          make(chan protocol.Message, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send enqueues m. It blocks while the queue is full and fails once the
// sink has been closed.
func (s *sink) Send(m protocol.Message) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case <-s.done:
		return ErrSinkClosed
	case s.out <- m:
		return nil
	}
}

// Close asks the writer to flush queued frames, send a close frame and stop.
func (s *sink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// run writes queued frames until the sink is closed, ctx is done or a write
// fails.
func (s *sink) run(ctx context.Context) error {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			s.flush()
			_ = s.w.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ErrSinkClosed
		case m := <-s.out:
			if err := s.write(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *sink) flush() {
	for {
		select {
		case m := <-s.out:
			if s.write(context.Background(), m) != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *sink) write(ctx context.Context, m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		_ = s.w.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.w.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	eventbus.Publish(ctx, events.Frame{ConnectionID: s.connID, Direction: events.Outbound, Type: string(m.Type)})
	return nil
}
