package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWrapper(t *testing.T) (*RedisWrapper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWrapper(client, "test", zap.NewNop()), mr
}

func TestRedisWrapperBasicCommands(t *testing.T) {
	rw, _ := newTestWrapper(t)
	ctx := context.Background()

	require.NoError(t, rw.Ping(ctx).Err())
	require.NoError(t, rw.Set(ctx, "k", "v", time.Minute).Err())

	val, err := rw.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	n, err := rw.Incr(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, rw.Del(ctx, "k").Err())
	_, err = rw.Get(ctx, "k").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisWrapperGetMissIsNotFailure(t *testing.T) {
	rw, _ := newTestWrapper(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := rw.Get(ctx, "missing").Result()
		require.ErrorIs(t, err, redis.Nil)
	}
	assert.False(t, rw.IsCircuitBreakerOpen())
}

func TestRedisWrapperOpensOnConnectionFailure(t *testing.T) {
	rw, mr := newTestWrapper(t)
	ctx := context.Background()

	mr.Close()
	for i := 0; i < 5; i++ {
		_ = rw.Set(ctx, "k", "v", 0).Err()
	}
	assert.True(t, rw.IsCircuitBreakerOpen())

	err := rw.Set(ctx, "k", "v", 0).Err()
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestRedisWrapperListAndZSet(t *testing.T) {
	rw, _ := newTestWrapper(t)
	ctx := context.Background()

	require.NoError(t, rw.LPush(ctx, "queue", "a", "b").Err())
	n, err := rw.LLen(ctx, "queue").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	vals, err := rw.BRPop(ctx, time.Second, "queue").Result()
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "a", vals[1])

	require.NoError(t, rw.ZAdd(ctx, "sched", redis.Z{Score: 1, Member: "x"}).Err())
	members, err := rw.ZRangeByScore(ctx, "sched", &redis.ZRangeBy{Min: "0", Max: "2"}).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, members)

	require.NoError(t, rw.ZRem(ctx, "sched", "x").Err())
}

func TestRedisWrapperTxPipelined(t *testing.T) {
	rw, _ := newTestWrapper(t)
	ctx := context.Background()

	cmds, err := rw.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, "a")
		pipe.Incr(ctx, "b")
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, cmds, 2)

	a, err := rw.Get(ctx, "a").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, a)
}
