package cache

import (
	"context"
	"time"

	"github.com/mysterria/silkroad/cache/local"
	cacheredis "github.com/mysterria/silkroad/cache/redis"
)

// Cache holds the registry's short-lived shared state: per-transfer claim
// locks (SetNX/Release) and per-actor chunk selections (sets). Del clears
// either kind of key.
type Cache interface {
	SetNX(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release deletes key only while owner holds it and reports whether it did.
	Release(ctx context.Context, key, owner string) (bool, error)
	Del(ctx context.Context, keys ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub carries actor notifications.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig selects Redis when RedisAddr is set, in-process otherwise.
type CacheConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string
	LocalGCInterval time.Duration
	LocalPubSubBuf  int
}

// Backend is an opened Cache and PubSub pair.
type Backend struct {
	Cache  Cache
	PubSub PubSub
	close  func() error
}

// Close releases the Redis connection or stops the local sweeper.
func (b *Backend) Close() error { return b.close() }

// Open builds the backend for cfg. Redis mode shares one client between the
// cache and pub/sub.
func Open(cfg CacheConfig) (*Backend, error) {
	if cfg.RedisAddr != "" {
		cl, err := cacheredis.Dial(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Cache: cl, PubSub: redisPubSub{cl}, close: cl.Close}, nil
	}
	lc := local.NewCache(cfg.LocalGCInterval)
	ps := local.NewPubSub(cfg.LocalPubSubBuf)
	return &Backend{Cache: lc, PubSub: localPubSub{ps}, close: lc.Close}, nil
}

// relay copies backend messages into cache.Messages until in closes.
func relay[M any](in <-chan M, conv func(M) *Message) <-chan *Message {
	out := make(chan *Message, cap(in))
	go func() {
		defer close(out)
		for m := range in {
			out <- conv(m)
		}
	}()
	return out
}

type localPubSub struct{ ps *local.LocalPubSub }

func (a localPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a localPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	return relay(in, func(m *local.LocalMessage) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	}), cancel, nil
}

type redisPubSub struct{ cl *cacheredis.Client }

func (a redisPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.cl.Publish(ctx, channel, message)
}

func (a redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.cl.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	return relay(in, func(m cacheredis.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	}), cancel, nil
}
