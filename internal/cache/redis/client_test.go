package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewFromRedis(rdb), mr
}

func TestStore_GetSet(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "weather:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "weather:abc", []byte(`{"status":"ok"}`), time.Hour))

	data, ok, err := store.Get(ctx, "weather:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
	assert.True(t, mr.Exists(keyPrefix+"weather:abc"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.Get(ctx, "weather:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Invalidate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "weather:1", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "weather:2", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "market_price:1", []byte("3"), time.Hour))

	removed, err := store.Invalidate(ctx, "weather:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, _ := store.Get(ctx, "market_price:1")
	assert.True(t, ok)
}
