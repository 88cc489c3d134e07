package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/sitereport-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPoolSize       = 10
)

// Client wraps a go-redis client with lifecycle and health reporting.
//
// The embedded *goredis.Client is handed to the session store; all of its
// methods are safe for concurrent use.
type Client struct {
	*goredis.Client

	closed bool
	mu     sync.RWMutex
}

// Connect dials Redis and verifies it with a PING.
// The dial/read/write timeouts from cfg bound every later command.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(buildOptions(cfg))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Addr, err)
	}

	return &Client{Client: rdb}, nil
}

// buildOptions maps config onto go-redis options. Zero values fall back to
// go-redis defaults except the pool size.
func buildOptions(cfg config.RedisConfig) *goredis.Options {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	return &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  seconds(cfg.DialTimeout),
		ReadTimeout:  seconds(cfg.ReadTimeout),
		WriteTimeout: seconds(cfg.WriteTimeout),
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}

	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Client == nil {
		return nil
	}
	c.closed = true
	if err := c.Client.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
