// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisReuseTracker_MarkAndLookup(t *testing.T) {
	server, client := newRedis(t)
	tracker := auth.NewReuseTracker(client)
	ctx := context.Background()

	_, found, err := tracker.ConsumedBy(ctx, "digest")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tracker.MarkConsumed(ctx, "digest", 42, time.Hour))

	userID, found, err := tracker.ConsumedBy(ctx, "digest")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, time.Hour, server.TTL(constants.RedisPrefixConsumedRefresh+"digest"))

	server.FastForward(time.Hour + time.Second)

	_, found, err = tracker.ConsumedBy(ctx, "digest")
	require.NoError(t, err)
	assert.False(t, found, "tombstones expire with the token")
}

func TestRedisReuseTracker_SkipsNonPositiveTTL(t *testing.T) {
	server, client := newRedis(t)

	require.NoError(t, auth.NewReuseTracker(client).MarkConsumed(context.Background(), "digest", 42, 0))
	assert.False(t, server.Exists(constants.RedisPrefixConsumedRefresh+"digest"))
}

func TestRedisReuseTracker_CorruptValue(t *testing.T) {
	server, client := newRedis(t)
	require.NoError(t, server.Set(constants.RedisPrefixConsumedRefresh+"digest", "not-a-number"))

	_, _, err := auth.NewReuseTracker(client).ConsumedBy(context.Background(), "digest")
	assert.Error(t, err)
}

func TestRedisReuseTracker_ServerError(t *testing.T) {
	server, client := newRedis(t)
	server.SetError("ERR tracker unavailable")

	_, _, err := auth.NewReuseTracker(client).ConsumedBy(context.Background(), "digest")
	assert.Error(t, err)
}
