package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

var capAcquireScript = redis.NewScript(`
-- KEYS[1] = counter key, ARGV[1] = limit, ARGV[2] = ttl_ms
-- Returns 1 if a slot was taken, 0 if the limit is reached.
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var capReleaseScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// ConcurrencyCap bounds simultaneous holders of a named slot pool across
// processes. The TTL reclaims slots leaked by a crashed process.
type ConcurrencyCap struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewConcurrencyCap(rdb *redis.Client, prefix string, ttl time.Duration) *ConcurrencyCap {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ConcurrencyCap{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *ConcurrencyCap) key(name string) string { return c.prefix + name }

// Acquire takes one slot under name if fewer than limit are held.
func (c *ConcurrencyCap) Acquire(ctx context.Context, name string, limit int) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if name == "" {
		return false, fmt.Errorf("cap name is required")
	}
	if limit <= 0 {
		return false, fmt.Errorf("limit must be > 0")
	}
	res, err := capAcquireScript.Run(ctx, c.rdb, []string{c.key(name)}, limit, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release returns one slot under name.
func (c *ConcurrencyCap) Release(ctx context.Context, name string) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if name == "" {
		return fmt.Errorf("cap name is required")
	}
	_, err := capReleaseScript.Run(ctx, c.rdb, []string{c.key(name)}).Result()
	return err
}
