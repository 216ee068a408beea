package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func newTestCache(t *testing.T) (*Cache, *fakeNow) {
	c := NewCache(time.Hour)
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	c.now = clock.now
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestSetNX(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock:transfer:t1", "owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock:transfer:t1", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNX_AfterDel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock:transfer:t1", "1", time.Minute)
	require.True(t, ok)
	require.NoError(t, c.Del(ctx, "lock:transfer:t1"))

	ok, err := c.SetNX(ctx, "lock:transfer:t1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetNX_Expired(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", 10*time.Second)
	require.True(t, ok)

	clock.t = clock.t.Add(9 * time.Second)
	ok, _ = c.SetNX(ctx, "lock", "b", time.Minute)
	assert.False(t, ok)

	clock.t = clock.t.Add(time.Second)
	ok, err := c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetNX_ZeroTTLHoldsUntilDel(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", 0)
	require.True(t, ok)
	clock.t = clock.t.Add(24 * time.Hour)
	ok, _ = c.SetNX(ctx, "lock", "b", 0)
	assert.False(t, ok)
	assert.Zero(t, c.sweep())
}

func TestRelease_OwnerOnly(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", time.Minute)
	require.True(t, ok)

	released, err := c.Release(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, released)
	ok, _ = c.SetNX(ctx, "lock", "b", time.Minute)
	assert.False(t, ok, "a still holds the lock")

	released, err = c.Release(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, released)
	ok, _ = c.SetNX(ctx, "lock", "b", time.Minute)
	assert.True(t, ok)
}

func TestRelease_ExpiredLockKeepsNewHolder(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.SetNX(ctx, "lock", "a", 10*time.Second)
	require.True(t, ok)
	clock.t = clock.t.Add(11 * time.Second)

	released, err := c.Release(ctx, "lock", "a")
	require.NoError(t, err)
	assert.False(t, released)

	ok, _ = c.SetNX(ctx, "lock", "b", time.Minute)
	require.True(t, ok)
	released, _ = c.Release(ctx, "lock", "a")
	assert.False(t, released)
	ok, _ = c.SetNX(ctx, "lock", "c", time.Minute)
	assert.False(t, ok, "b keeps the lock")
}

func TestRelease_Missing(t *testing.T) {
	c, _ := newTestCache(t)
	released, err := c.Release(context.Background(), "nothing", "a")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	_, _ = c.SetNX(ctx, "short", "1", time.Second)
	_, _ = c.SetNX(ctx, "long", "1", time.Hour)
	clock.t = clock.t.Add(time.Minute)

	assert.Equal(t, 1, c.sweep())
	ok, _ := c.SetNX(ctx, "long", "2", time.Hour)
	assert.False(t, ok)
}

func TestSets(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "selection:alice", "world:1:2", "world:0:0", "world:1:2"))
	members, err := c.SMembers(ctx, "selection:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"world:0:0", "world:1:2"}, members)

	ok, err := c.SIsMember(ctx, "selection:alice", "world:0:0")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SRem(ctx, "selection:alice", "world:0:0"))
	ok, _ = c.SIsMember(ctx, "selection:alice", "world:0:0")
	assert.False(t, ok)
}

func TestSets_MissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	members, err := c.SMembers(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, members)

	ok, err := c.SIsMember(ctx, "nothing", "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.SRem(ctx, "nothing", "a"))
}

func TestDel_ClearsLocksAndSets(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "k", "a"))
	_, _ = c.SetNX(ctx, "k", "1", 0)
	require.NoError(t, c.Del(ctx, "k"))

	members, _ := c.SMembers(ctx, "k")
	assert.Empty(t, members)
	ok, _ := c.SetNX(ctx, "k", "2", 0)
	assert.True(t, ok)
}

func TestClose_Twice(t *testing.T) {
	c := NewCache(0)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
