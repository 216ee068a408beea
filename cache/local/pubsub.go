package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
	once     sync.Once
}

// LocalPubSub is an in-process fan-out pub/sub implementation. Delivery is
// best effort: a subscriber whose buffer is full misses the message.
type LocalPubSub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		byTopic: make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	// Held across the sends so cancel cannot close a channel mid-publish.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for sub := range ps.byTopic[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels, and a
// cancel function that may be called more than once.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{
		ch:       make(chan *LocalMessage, ps.bufSize),
		channels: append([]string(nil), channels...),
	}

	ps.mu.Lock()
	for _, c := range sub.channels {
		set, ok := ps.byTopic[c]
		if !ok {
			set = make(map[*subscription]struct{})
			ps.byTopic[c] = set
		}
		set[sub] = struct{}{}
	}
	ps.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range sub.channels {
				delete(ps.byTopic[c], sub)
				if len(ps.byTopic[c]) == 0 {
					delete(ps.byTopic, c)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions on channel.
func (ps *LocalPubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.byTopic[channel])
}
