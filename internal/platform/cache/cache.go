// Package cache wraps the Dragonfly/Redis client shared by training locks and
// notification dedupe.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 5 * time.Minute
	pingTimeout    = 2 * time.Second
)

// Options configures the client.
type Options struct {
	URL string
	// LockTTL is the lease of locks handed out by Locker. A holder that dies
	// blocks other editors of the same training for at most this long.
	LockTTL time.Duration
}

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client  *redis.Client
	lockTTL time.Duration
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New connects a client and verifies it answers.
func New(ctx context.Context, opts Options) (*Cache, error) {
	redisOpts, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second

	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	c := &Cache{Client: redis.NewClient(redisOpts), lockTTL: lockTTL}
	if err := c.Ping(ctx); err != nil {
		c.Client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}
	return c, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// Ping checks the connection with a short deadline.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Client.Ping(ctx).Err()
}

// Locker returns a distributed Locker whose leases last the configured
// LockTTL.
func (c *Cache) Locker() *Locker {
	return NewLocker(c.Client, c.lockTTL)
}

// NewLocker creates a Locker whose leases last ttl.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, ttl: ttl}
}
