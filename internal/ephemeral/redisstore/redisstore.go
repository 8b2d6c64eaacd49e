// Package redisstore is the production Ephemeral Store, backed by Redis
// through redis/go-redis/v9, the way chimera-pool-core and tos-pool's
// storage.RedisClient coordinate rate limits and worker liveness.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contribpool/poolcore/internal/ephemeral"
)

// Store implements ephemeral.Port.
type Store struct {
	rdb *redis.Client
}

// Open parses addr ("host:port" or a redis:// URL) and connects.
func Open(addr string) (*Store, error) {
	var opts *redis.Options
	if len(addr) > 8 && addr[:8] == "redis://" {
		var err error
		opts, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("ephemeral/redisstore: parse url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

const opTimeout = 2 * time.Second

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ephemeral/redisstore: incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("ephemeral/redisstore: expire %s: %w", key, err)
		}
	}
	return n, nil
}

func (s *Store) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ephemeral/redisstore: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ephemeral/redisstore: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("ephemeral/redisstore: set %s: %w", key, err)
	}
	return nil
}

var _ ephemeral.Port = (*Store)(nil)
