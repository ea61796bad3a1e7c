package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, prefix string) (StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStateStore(client, prefix), mr
}

func TestRedisStateStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, "till-1:")

	require.NoError(t, s.Set(ctx, "token", []byte("abc"), 0))
	assert.True(t, mr.Exists("till-1:token"))

	v, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)

	require.NoError(t, s.Delete(ctx, "token"))
	v, err = s.Get(ctx, "token")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRedisStateStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, "")

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStateStore_ClearOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, "till-1:")

	require.NoError(t, mr.Set("till-2:token", "other"))
	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, s.Clear(ctx))

	assert.False(t, mr.Exists("till-1:a"))
	assert.False(t, mr.Exists("till-1:b"))
	assert.True(t, mr.Exists("till-2:token"))
}

type fakeRedisErr string

func (e fakeRedisErr) Error() string { return string(e) }
func (fakeRedisErr) RedisError()     {}

func TestMapRedisErr(t *testing.T) {
	assert.NoError(t, mapRedisErr(nil))
	assert.ErrorIs(t, mapRedisErr(fakeRedisErr("OOM command not allowed when used memory > 'maxmemory'.")), ErrQuotaExceeded)

	other := fakeRedisErr("ERR wrong number of arguments")
	assert.Equal(t, error(other), mapRedisErr(other))

	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, mapRedisErr(plain))
}
