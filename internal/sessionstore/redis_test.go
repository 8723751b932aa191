package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/internal/session"
	"github.com/tonimelisma/irdrive/internal/session/sessiontest"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore_Conformance(t *testing.T) {
	sessiontest.RunStoreTests(t, func(t *testing.T) session.Store {
		store, _ := newTestRedisStore(t)
		return store
	})
}

func TestRedisStore_SessionTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.PutSession(ctx, &session.Session{ID: "ttl", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.PutSession(ctx, &session.Session{ID: "forever"}))

	assert.Greater(t, mr.TTL(redisSessionPrefix+"ttl"), 59*time.Minute)
	assert.Zero(t, mr.TTL(redisSessionPrefix+"forever"))

	mr.FastForward(2 * time.Hour)

	_, err := store.GetSession(ctx, "ttl")
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = store.GetSession(ctx, "forever")
	require.NoError(t, err)
}

func TestRedisStore_PastExpiryDeletes(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.PutSession(ctx, &session.Session{ID: "s"}))
	require.NoError(t, store.PutSession(ctx, &session.Session{ID: "s", ExpiresAt: time.Now().Add(-time.Minute)}))

	assert.False(t, mr.Exists(redisSessionPrefix+"s"))
}

func TestRedisStore_FlowKeyExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	now := time.Now()

	require.NoError(t, store.PutFlow(ctx, &session.Flow{State: "st", ExpiresAt: now.Add(10 * time.Minute)}))
	assert.True(t, mr.Exists(redisFlowPrefix+"st"))

	mr.FastForward(11 * time.Minute)

	_, err := store.TakeFlow(ctx, "st", now)
	assert.ErrorIs(t, err, session.ErrFlowNotFound)

	removed, err := store.Reap(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	connURL := "redis://" + mr.Addr() + "/0"

	client, err := ConnectRedis(context.Background(), connURL)
	require.NoError(t, err)
	client.Close()

	_, err = ConnectRedis(context.Background(), "not-a-url://")
	assert.ErrorIs(t, err, ErrFailedToParseRedisURL)

	mr.Close()

	_, err = ConnectRedis(context.Background(), connURL)
	assert.ErrorIs(t, err, ErrRedisNotReady)
}
