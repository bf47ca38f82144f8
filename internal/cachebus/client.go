// Package cachebus implements the Cache/Bus Adapter of spec.md §4.1: a
// namespaced key/value store with pipelined batch ops and pub/sub,
// backed by Redis via github.com/go-redis/redis/v8 (declared but never
// wired in the teacher's go.mod; chomp is the first consumer).
package cachebus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Default sub-namespaces (spec.md §6 "Cache key schema").
const (
	NSClaim    = "claim:"
	NSCache    = "cache:"
	NSRegistry = "registry:"
	NSLocks    = "locks:"
	NSStatus   = "status:"
)

// Client implements spec.md §4.1's get/set/delete/exists/keys/scan,
// batch_set/batch_get, and publish/subscribe contract.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// Config binds a Client to a Redis endpoint and a key namespace
// (default "chomp:", spec.md §4.1 "Namespace").
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// New connects to Redis. Connection is established lazily by the
// go-redis client itself; New only validates the namespace default.
func New(cfg Config) *Client {
	ns := cfg.Namespace
	if ns == "" {
		ns = "chomp:"
	}
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		namespace: ns,
	}
}

func (c *Client) key(s string) string { return c.namespace + s }

// Ping checks liveness with a cheap round-trip.
func (c *Client) Ping(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Get returns the raw bytes at key, or (nil, false) if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cachebus: get %s: %w", key, err)
	}
	return v, true, nil
}

// SetWithTTL stores value at key with the given TTL in seconds.
// ttlSec == 0 means no expiry.
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttlSec int) (bool, error) {
	ttl := time.Duration(ttlSec) * time.Second
	if ttlSec == 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return false, fmt.Errorf("cachebus: set %s: %w", key, err)
	}
	return true, nil
}

// SetNX sets key iff it does not already exist, with the given TTL.
// This is the primitive the Claim Service's mutual-exclusion lease and
// the Registry Service's advisory lock are both built on (spec.md §4.3,
// §4.4, §9 "Registry lock via cache SET NX PX").
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttlSec int) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key(key), value, time.Duration(ttlSec)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("cachebus: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes key, returning whether it existed.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cachebus: delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cachebus: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys returns every key matching pattern (namespace-relative). For
// large keyspaces prefer Scan.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	full, err := c.rdb.Keys(ctx, c.key(pattern)).Result()
	if err != nil {
		return nil, fmt.Errorf("cachebus: keys %s: %w", pattern, err)
	}
	out := make([]string, len(full))
	for i, k := range full {
		out[i] = k[len(c.namespace):]
	}
	return out, nil
}

// Scan performs one cursor-based SCAN iteration over pattern.
func (c *Client) Scan(ctx context.Context, cursor uint64, pattern string, count int64) (keys []string, next uint64, err error) {
	full, next, err := c.rdb.Scan(ctx, cursor, c.key(pattern), count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("cachebus: scan %s: %w", pattern, err)
	}
	keys = make([]string, len(full))
	for i, k := range full {
		keys[i] = k[len(c.namespace):]
	}
	return keys, next, nil
}

// BatchSet writes every key in values with the same TTL, using a single
// pipelined transaction (spec.md §4.1 "batch_set").
func (c *Client) BatchSet(ctx context.Context, values map[string][]byte, ttlSec int) error {
	if len(values) == 0 {
		return nil
	}
	ttl := time.Duration(ttlSec) * time.Second
	pipe := c.rdb.TxPipeline()
	for k, v := range values {
		pipe.Set(ctx, c.key(k), v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cachebus: batch_set: %w", err)
	}
	return nil
}

// BatchGet reads every key in keys with a single multi-get, omitting
// keys that were absent (spec.md §4.1 "batch_get").
func (c *Client) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("cachebus: batch_get: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

// Publish publishes payload on channel, returning the number of
// subscribers that received it.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := c.rdb.Publish(ctx, c.key(channel), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("cachebus: publish %s: %w", channel, err)
	}
	return n, nil
}

// Subscribe starts a dedicated consumer over channels and invokes
// handler per inbound message until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	full := make([]string, len(channels))
	for i, ch := range channels {
		full[i] = c.key(ch)
	}
	sub := c.rdb.Subscribe(ctx, full...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Channel[len(c.namespace):], []byte(msg.Payload))
		}
	}
}

// GetOrSetCache fetches key; on a miss it calls fetch, stores the
// result with ttlSec, and returns it. This is the shared helper every
// ingester type uses to dedupe identical fetches within one epoch
// (spec.md §4.6.1 "fingerprint" caching, SPEC_FULL.md §6 supplement).
func (c *Client) GetOrSetCache(ctx context.Context, key string, ttlSec int, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.SetWithTTL(ctx, key, v, ttlSec); err != nil {
		return nil, err
	}
	return v, nil
}
