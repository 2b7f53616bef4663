// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
)

// RedisReuseTracker implements [ReuseTracker] with expiring Redis keys.
type RedisReuseTracker struct {
	client redis.UniversalClient
}

// NewReuseTracker creates a new Redis-backed ReuseTracker.
func NewReuseTracker(client redis.UniversalClient) *RedisReuseTracker {
	return &RedisReuseTracker{client: client}
}

/*
MarkConsumed records that a refresh-token digest was rotated away.

Parameters:
  - context: context.Context
  - tokenHash: string
  - userID: int64
  - ttl: time.Duration (remaining lifetime of the consumed token)

Returns:
  - error: Execution errors
*/
func (tracker *RedisReuseTracker) MarkConsumed(context context.Context, tokenHash string, userID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	key := constants.RedisPrefixConsumedRefresh + tokenHash
	if err := tracker.client.Set(context, key, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis_reuse_tracker_mark_failed: %w", err)
	}

	return nil
}

/*
ConsumedBy looks up a previously rotated digest.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - int64: Owner of the consumed token
  - bool: Whether the digest is known
  - error: Connectivity or decoding errors
*/
func (tracker *RedisReuseTracker) ConsumedBy(context context.Context, tokenHash string) (int64, bool, error) {
	value, err := tracker.client.Get(context, constants.RedisPrefixConsumedRefresh+tokenHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis_reuse_tracker_get_failed: %w", err)
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis_reuse_tracker_decode_failed: %w", err)
	}

	return userID, true, nil
}
