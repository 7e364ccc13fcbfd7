package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	protocol "github.com/hanpama/gqlws/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	frames   []string
	controls []int
	fail     error
}

func (f *fakeWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWriter) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.frames = append(f.frames, string(data))
	return nil
}

func (f *fakeWriter) WriteControl(mt int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, mt)
	return nil
}

func (f *fakeWriter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func TestSinkWritesInOrderAndFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	s := newSink("c", w, 8, time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(protocol.Complete(string(rune('a'+i)))))
	}
	require.NoError(t, s.Close())

	err := s.run(context.Background())
	require.ErrorIs(t, err, ErrSinkClosed)
	require.Equal(t, []string{
		`{"type":"complete","id":"a"}`,
		`{"type":"complete","id":"b"}`,
		`{"type":"complete","id":"c"}`,
	}, w.snapshot())
	require.Equal(t, []int{websocket.CloseMessage}, w.controls)
	require.ErrorIs(t, s.Send(protocol.ConnectionAck()), ErrSinkClosed)
}

func TestSinkWriteFailureClosesSink(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &fakeWriter{fail: boom}
	s := newSink("c", w, 1, 0)

	done := make(chan error, 1)
	go func() { done <- s.run(context.Background()) }()
	require.NoError(t, s.Send(protocol.ConnectionAck()))
	require.ErrorIs(t, <-done, boom)
	require.ErrorIs(t, s.Send(protocol.ConnectionAck()), ErrSinkClosed)
}

func TestSinkSendUnblocksOnClose(t *testing.T) {
	s := newSink("c", &fakeWriter{}, 0, 0)
	errc := make(chan error, 1)
	go func() { errc <- s.Send(protocol.ConnectionAck()) }()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Close())
	require.ErrorIs(t, <-errc, ErrSinkClosed)
}

func TestSinkStopsOnContext(t *testing.T) {
	s := newSink("c", &fakeWriter{}, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.run(ctx), context.Canceled)
}
