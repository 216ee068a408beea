package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_LocalFallback(t *testing.T) {
	b, err := Open(CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	ok, err := b.Cache.SetNX(ctx, "lock:transfer:t1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.Cache.SetNX(ctx, "lock:transfer:t1", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_LocalPubSubRoundTrip(t *testing.T) {
	b, err := Open(CacheConfig{LocalPubSubBuf: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	ch, cancel, err := b.PubSub.Subscribe(ctx, "notify:alice")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.PubSub.Publish(ctx, "notify:alice", "hi"))
	select {
	case msg := <-ch:
		assert.Equal(t, "notify:alice", msg.Channel)
		assert.Equal(t, "hi", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestOpen_RelayClosesOnCancel(t *testing.T) {
	b, err := Open(CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ch, cancel, err := b.PubSub.Subscribe(context.Background(), "notify:bob")
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("relay did not close")
	}
}

func TestOpen_RedisUnreachable(t *testing.T) {
	_, err := Open(CacheConfig{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}
