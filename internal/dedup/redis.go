package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TradeSentinel/internal/model"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// RedisSeen implements Seen with SETNX keys that expire after TTL.
type RedisSeen struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSeen connects to Redis and verifies the connection.
func NewRedisSeen(cfg Config) (*RedisSeen, error) {
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

	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tradesentinel:seen:"
	}
	return &RedisSeen{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix}, nil
}

func (r *RedisSeen) FirstSeen(ctx context.Context, source model.Source, text string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+Key(source, text), string(source), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Forget removes a post so that it is classified again on the next run.
func (r *RedisSeen) Forget(ctx context.Context, source model.Source, text string) error {
	return r.rdb.Del(ctx, r.prefix+Key(source, text)).Err()
}

// Close closes the Redis connection.
func (r *RedisSeen) Close() error {
	return r.rdb.Close()
}
