package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), server
}

func TestRedisStoreAddSetsTTL(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "jti-1", time.Now().Add(10*time.Minute)))

	assert.True(t, server.Exists("blacklist:jti-1"))
	ttl := server.TTL("blacklist:jti-1")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	revoked, err := store.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisStoreEntryExpires(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "jti-1", time.Now().Add(30*time.Second)))
	server.FastForward(time.Minute)

	revoked, err := store.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStoreSkipsExpiredTokens(t *testing.T) {
	store, server := newRedisStore(t)

	require.NoError(t, store.Add(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.False(t, server.Exists("blacklist:old"))
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	store, server := newRedisStore(t)
	server.Close()

	_, err := store.Contains(context.Background(), "jti")
	require.Error(t, err)
}

func TestRedisStoreClaim(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(10 * time.Minute)

	claimed, err := store.Claim(ctx, "jti-1", expiresAt)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Greater(t, server.TTL("blacklist:jti-1"), 9*time.Minute)

	claimed, err = store.Claim(ctx, "jti-1", expiresAt)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, store.Add(ctx, "jti-2", expiresAt))
	claimed, err = store.Claim(ctx, "jti-2", expiresAt)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = store.Claim(ctx, "jti-old", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.False(t, server.Exists("blacklist:jti-old"))
}
