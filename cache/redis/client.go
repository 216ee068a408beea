package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Config holds Redis connection settings. Prefix namespaces every key and
// channel so several servers can share one Redis database.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Client serves both the lock/selection cache and notification pub/sub over
// one connection pool.
type Client struct {
	rdb    *goredis.Client
	prefix string
}

// Dial connects and pings Redis.
func Dial(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) key(k string) string { return c.prefix + k }

func (c *Client) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

func members(ms []string) []any {
	args := make([]any, len(ms))
	for i, m := range ms {
		args[i] = m
	}
	return args
}

// ---- locks ----

// releaseScript deletes KEYS[1] only when it still holds ARGV[1].
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *Client) SetNX(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.key(key), owner, ttl).Result()
}

func (c *Client) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.rdb, []string{c.key(key)}, owner).Int()
	return n == 1, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, c.keys(keys)...).Err()
}

// ---- sets ----

func (c *Client) SAdd(ctx context.Context, key string, ms ...string) error {
	return c.rdb.SAdd(ctx, c.key(key), members(ms)...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, ms ...string) error {
	return c.rdb.SRem(ctx, c.key(key), members(ms)...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, c.key(key)).Result()
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return c.rdb.SIsMember(ctx, c.key(key), member).Result()
}

// ---- pub/sub ----

// Message is a received pub/sub message with the prefix stripped from its
// channel.
type Message struct {
	Channel string
	Payload string
}

func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.rdb.Publish(ctx, c.key(channel), message).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning.
// The channel closes once cancel is called.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (<-chan Message, func(), error) {
	ps := c.rdb.Subscribe(ctx, c.keys(channels)...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}
	out := make(chan Message, 256)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			out <- Message{Channel: strings.TrimPrefix(msg.Channel, c.prefix), Payload: msg.Payload}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}
