package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrVeto is returned by a handler that rejects the operation behind a
// Before* event. Wrap it to give a reason.
var ErrVeto = errors.New("vetoed")

// Lifecycle events fired by the caravan registry. Before* handlers run while
// the registry is locked and must not call back into it; After* handlers run
// once the registry is unlocked.
const (
	BeforeCaravanCreate    = "before_caravan_create"
	BeforeTransferCreate   = "before_transfer_create"
	BeforeTransferClaim    = "before_transfer_claim"
	AfterTransferDelivered = "after_transfer_delivered"
	AfterTransferFailed    = "after_transfer_failed"
)

// Fn handles one event. The payload type depends on the event.
type Fn func(ctx context.Context, event string, payload any) error

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center manages named handlers per event. A nil *Center fires nothing.
type Center struct {
	mu     sync.RWMutex
	hooks  map[string][]entry
	logger *zap.Logger
}

// NewCenter creates an empty Center.
func NewCenter(logger *zap.Logger) *Center {
	return &Center{hooks: make(map[string][]entry), logger: logger}
}

// Register adds fn for event. Lower priorities run first; equal priorities
// run in registration order. name is used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes every handler called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes every handler called name from all events.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

func without(entries []entry, name string) []entry {
	out := entries[:0]
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Handlers returns the handler names for event in run order.
func (c *Center) Handlers(event string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.hooks[event]))
	for i, e := range c.hooks[event] {
		names[i] = e.name
	}
	return names
}

// Fire runs the handlers for event in order. The first handler returning an
// error that wraps ErrVeto stops the chain and its error is returned. Other
// handler errors and panics are logged and skipped.
func (c *Center) Fire(ctx context.Context, event string, payload any) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	entries := append([]entry(nil), c.hooks[event]...)
	c.mu.RUnlock()

	for _, e := range entries {
		err := c.call(ctx, e, event, payload)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrVeto) {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		c.logger.Warn("hook failed",
			zap.String("event", event),
			zap.String("hook", e.name),
			zap.Error(err))
	}
	return nil
}

func (c *Center) call(ctx context.Context, e entry, event string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return e.fn(ctx, event, payload)
}
