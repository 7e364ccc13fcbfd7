package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	a := newOperation(context.Background(), "1")
	b := newOperation(context.Background(), "1")

	require.NoError(t, r.Register(a))
	require.ErrorIs(t, r.Register(b), ErrAlreadyExists)
	got, ok := r.Lookup("1")
	require.True(t, ok)
	require.Same(t, a, got)
	require.Equal(t, 1, r.Len())
}

func TestRegistryDeregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newOperation(context.Background(), "1")
	require.NoError(t, r.Register(a))

	require.True(t, r.Deregister("1", a))
	require.False(t, r.Deregister("1", a))
	require.False(t, r.Has("1"))
}

func TestRegistryDeregisterIgnoresReplacedEntry(t *testing.T) {
	r := NewRegistry()
	old := newOperation(context.Background(), "1")
	require.NoError(t, r.Register(old))
	require.True(t, r.Deregister("1", old))

	fresh := newOperation(context.Background(), "1")
	require.NoError(t, r.Register(fresh))
	require.False(t, r.Deregister("1", old), "a stale task must not remove the reused id")
	require.True(t, r.Has("1"))
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	op := newOperation(context.Background(), "x")
	require.NoError(t, r.Register(op))

	got, err := r.Cancel("x")
	require.NoError(t, err)
	require.Same(t, op, got)
	require.True(t, op.Cancelled())
	require.Error(t, op.Context().Err())
	require.False(t, r.Deregister("x", op), "cancel already removed the entry")

	_, err = r.Cancel("x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry()
	var ops []*Operation
	for _, id := range []string{"b", "a", "c"} {
		op := newOperation(context.Background(), id)
		require.NoError(t, r.Register(op))
		ops = append(ops, op)
	}

	require.Equal(t, []string{"a", "b", "c"}, r.CancelAll())
	require.Zero(t, r.Len())
	for _, op := range ops {
		require.True(t, op.Cancelled())
	}
	require.Empty(t, r.CancelAll())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%10))
			op := newOperation(context.Background(), id)
			if r.Register(op) == nil {
				if i%2 == 0 {
					_, _ = r.Cancel(id)
				} else {
					r.Deregister(id, op)
				}
			}
			op.cancel()
		}(i)
	}
	wg.Wait()
	r.CancelAll()
	require.Zero(t, r.Len())
}

func TestOperationEmitAfterStop(t *testing.T) {
	op := newOperation(context.Background(), "1")
	sink := &recordingSink{}
	require.True(t, op.emit(sink.Send, dataMsg("1")))
	op.stop()
	require.False(t, op.emit(sink.Send, dataMsg("1")))
	require.Len(t, sink.messages(), 1)
	require.Equal(t, 1, op.Results())
}
