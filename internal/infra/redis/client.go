package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection shared by the journal.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"` // key namespace, default "router"
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "router"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) outcomeKey(requestID string) string {
	return fmt.Sprintf("%s:outcome:%s", c.prefix, requestID)
}

func (c *Client) attemptsKey(requestID string) string {
	return fmt.Sprintf("%s:attempts:%s", c.prefix, requestID)
}

func (c *Client) recentKey() string {
	return fmt.Sprintf("%s:outcomes", c.prefix)
}

func (c *Client) regionFailureKey(region string) string {
	return fmt.Sprintf("%s:region_failure:%s", c.prefix, region)
}

func (c *Client) regionFailuresKey() string {
	return fmt.Sprintf("%s:region_failures", c.prefix)
}
