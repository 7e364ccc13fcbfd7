package pubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case p, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload")
		return nil
	}
}

func requireClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.C():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestMemoryFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	defer b.Close()

	a, err := b.Subscribe(ctx, "news")
	require.NoError(t, err)
	c, err := b.Subscribe(ctx, "news")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "sports")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "news", []byte("hello")))
	require.Equal(t, "hello", string(receive(t, a)))
	require.Equal(t, "hello", string(receive(t, c)))
	select {
	case <-other.C():
		t.Fatal("payload crossed topics")
	default:
	}

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	requireClosed(t, a)
	require.NoError(t, b.Publish(ctx, "news", []byte("again")))
	require.Equal(t, "again", string(receive(t, c)))
}

func TestMemoryDropsForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	defer b.Close()

	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	for i := 0; i < DefaultBuffer+3; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte{byte(i)}))
	}
	require.Equal(t, uint64(3), b.Dropped())
	require.Equal(t, []byte{0}, receive(t, sub))
}

func TestMemorySubscriptionEndsWithContext(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	cancel()
	requireClosed(t, sub)
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	requireClosed(t, sub)
	require.ErrorIs(t, b.Publish(ctx, "t", nil), ErrClosed)
	_, err = b.Subscribe(ctx, "t")
	require.ErrorIs(t, err, ErrClosed)
}

// TestRedis runs against a live server named by GQLWS_TEST_REDIS_URL.
func TestRedis(t *testing.T) {
	url := os.Getenv("GQLWS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GQLWS_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	b, err := NewRedis(ctx, url)
	require.NoError(t, err)
	defer b.Close()

	sub, err := b.Subscribe(ctx, "gqlws-test")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "gqlws-test", []byte("ping")))
	require.Equal(t, "ping", string(receive(t, sub)))
	require.NoError(t, sub.Close())
	requireClosed(t, sub)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url")
	require.Error(t, err)
}
