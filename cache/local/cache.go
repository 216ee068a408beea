package local

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type lock struct {
	owner   string
	expires time.Time // zero = held until deleted
}

func (l lock) heldAt(now time.Time) bool {
	return l.expires.IsZero() || now.Before(l.expires)
}

// Cache is the in-process backend for claim locks and chunk selections.
// Locks and sets live in separate key spaces; Del clears both.
type Cache struct {
	mu    sync.Mutex
	locks map[string]lock
	sets  map[string]map[string]struct{}
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a Cache that sweeps expired locks every gcInterval
// (30s when zero).
func NewCache(gcInterval time.Duration) *Cache {
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	c := &Cache{
		locks: make(map[string]lock),
		sets:  make(map[string]map[string]struct{}),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.sweepEvery(gcInterval)
	return c
}

// Close stops the sweeper. Safe to call twice.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Cache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep drops expired locks and returns how many it removed.
func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, l := range c.locks {
		if !l.heldAt(now) {
			delete(c.locks, k)
			n++
		}
	}
	return n
}

// SetNX takes key for owner unless a live lock already holds it. A ttl of
// zero holds the key until Del.
func (c *Cache) SetNX(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if l, ok := c.locks[key]; ok && l.heldAt(now) {
		return false, nil
	}
	l := lock{owner: owner}
	if ttl > 0 {
		l.expires = now.Add(ttl)
	}
	c.locks[key] = l
	return true, nil
}

// Release deletes key if owner holds a live lock on it.
func (c *Cache) Release(_ context.Context, key, owner string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok || l.owner != owner || !l.heldAt(c.now()) {
		return false, nil
	}
	delete(c.locks, key)
	return true, nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.locks, k)
		delete(c.sets, k)
	}
	return nil
}

func (c *Cache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		c.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (c *Cache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(c.sets, key)
	}
	return nil
}

// SMembers returns the members of key in sorted order.
func (c *Cache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sets[key]) == 0 {
		return []string{}, nil
	}
	return slices.Sorted(maps.Keys(c.sets[key])), nil
}

func (c *Cache) SIsMember(_ context.Context, key, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sets[key][member]
	return ok, nil
}
