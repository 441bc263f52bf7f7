// Package redis provides the Redis client used for sync checkpoints and counters.
// It holds the state chainsync needs to resume after a restart.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = stderrors.New("not found")

// MaxRecentHashes bounds the hash list kept per source. TurtleCoind accepts sparse
// checkpoints, so the newest few dozen hashes are enough to find a fork point.
const MaxRecentHashes = 64

// Client wraps Redis operations for chain following
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	// URL is a redis:// or rediss:// URL. Addr, Password and DB are ignored when it is set.
	URL          string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Options converts the config into go-redis options
func (cfg *Config) Options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}
		opts = parsed
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return opts, nil
}

// NewClient creates a new Redis client
func NewClient(cfg *Config) (*Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Sync checkpoints

// Checkpoint is the last block chainsync committed for a source
type Checkpoint struct {
	Height    uint64    `json:"height"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

func checkpointKey(source string) string { return fmt.Sprintf("sync:checkpoint:%s", source) }
func hashesKey(source string) string     { return fmt.Sprintf("sync:hashes:%s", source) }

// SaveCheckpoint stores cp and prepends hashes (oldest first) to the recent hash
// list in one pipeline
func (c *Client) SaveCheckpoint(ctx context.Context, source string, cp Checkpoint, hashes []string) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, checkpointKey(source), data, 0)
	if len(hashes) > 0 {
		values := make([]any, len(hashes))
		for i, h := range hashes {
			values[i] = h
		}
		// LPUSH pushes left to right, leaving the newest hash at the head
		pipe.LPush(ctx, hashesKey(source), values...)
		pipe.LTrim(ctx, hashesKey(source), 0, MaxRecentHashes-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// ForgetHashes removes hashes from the recent hash list of source
func (c *Client) ForgetHashes(ctx context.Context, source string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for _, h := range hashes {
		pipe.LRem(ctx, hashesKey(source), 0, h)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget hashes: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint of source, or ErrNotFound
func (c *Client) GetCheckpoint(ctx context.Context, source string) (*Checkpoint, error) {
	data, err := c.rdb.Get(ctx, checkpointKey(source)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// RecentHashes returns up to n stored hashes, newest first
func (c *Client) RecentHashes(ctx context.Context, source string, n int) ([]string, error) {
	if n <= 0 || n > MaxRecentHashes {
		n = MaxRecentHashes
	}
	hashes, err := c.rdb.LRange(ctx, hashesKey(source), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent hashes: %w", err)
	}
	return hashes, nil
}

// ResetCheckpoint forgets everything stored for source
func (c *Client) ResetCheckpoint(ctx context.Context, source string) error {
	if err := c.rdb.Del(ctx, checkpointKey(source), hashesKey(source)).Err(); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

// Statistics and counters

// IncrementCounter adds delta to a counter and returns the new value
func (c *Client) IncrementCounter(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := c.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return val, nil
}

// GetCounter retrieves a counter value
func (c *Client) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := c.rdb.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return val, nil
}
