// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watermark

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the key namespace shared with other agents.
const DefaultKeyPrefix = "evannetwork"

// RedisOptions selects the Redis server. URL, if set, wins over the
// individual fields.
type RedisOptions struct {
	URL       string
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStore keeps watermarks in Redis.
type RedisStore struct {
	client redisClient
	prefix string
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, options RedisOptions) (*RedisStore, error) {
	var clientOptions *redis.Options
	if options.URL != "" {
		parsed, err := redis.ParseURL(options.URL)
		if err != nil {
			return nil, fmt.Errorf("watermark: parsing redis URL: %w", err)
		}
		clientOptions = parsed
	} else {
		clientOptions = &redis.Options{
			Addr:     options.Address,
			Password: options.Password,
			DB:       options.DB,
		}
	}

	client := redis.NewClient(clientOptions)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("watermark: connecting to redis at %s: %w", clientOptions.Addr, err)
	}
	return newRedisStore(client, options.KeyPrefix), nil
}

func newRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Key returns the Redis key holding agent's watermark.
func (s *RedisStore) Key(agent string) string {
	return s.prefix + ":" + agent + ":lastBlockOnboarding"
}

func (s *RedisStore) Load(ctx context.Context, agent string) (uint64, bool, error) {
	value, err := s.client.Get(ctx, s.Key(agent)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("watermark: reading %s: %w", s.Key(agent), err)
	}
	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("watermark: %s holds %q, not a block number", s.Key(agent), value)
	}
	return block, true, nil
}

func (s *RedisStore) Save(ctx context.Context, agent string, block uint64) error {
	if err := s.client.Set(ctx, s.Key(agent), strconv.FormatUint(block, 10), 0).Err(); err != nil {
		return fmt.Errorf("watermark: writing %s: %w", s.Key(agent), err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
