package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper wraps a Redis client with a circuit breaker. It covers the
// command surface used by the progress tracker, task queue, session store
// and embedding cache.
type RedisWrapper struct {
	client  *redis.Client
	cb      *CircuitBreaker
	service string
	logger  *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, service string, logger *zap.Logger) *RedisWrapper {
	if service == "" {
		service = "redis"
	}
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", service, cb)

	return &RedisWrapper{
		client:  client,
		cb:      cb,
		service: service,
		logger:  logger,
	}
}

func (rw *RedisWrapper) record(success bool) {
	GlobalMetricsCollector.RecordRequest("redis", rw.service, rw.cb.State(), success)
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Get wraps Redis Get with circuit breaker. A key miss (redis.Nil) does not
// count as a breaker failure.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Set wraps Redis Set with circuit breaker
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SetEx wraps Redis SETEX with circuit breaker
func (rw *RedisWrapper) SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.SetEx(ctx, key, value, expiration)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Del wraps Redis Del with circuit breaker
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Incr wraps Redis Incr with circuit breaker
func (rw *RedisWrapper) Incr(ctx context.Context, key string) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Incr(ctx, key)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Expire wraps Redis Expire with circuit breaker
func (rw *RedisWrapper) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	var result *redis.BoolCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Expire(ctx, key, expiration)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// TTL wraps Redis TTL with circuit breaker
func (rw *RedisWrapper) TTL(ctx context.Context, key string) *redis.DurationCmd {
	var result *redis.DurationCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.TTL(ctx, key)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewDurationCmd(ctx, time.Second)
		result.SetErr(err)
	}
	return result
}

// Scan wraps Redis Scan with circuit breaker
func (rw *RedisWrapper) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	var result *redis.ScanCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Scan(ctx, cursor, match, count)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewScanCmd(ctx, nil)
		result.SetErr(err)
	}
	return result
}

// LPush wraps Redis LPush with circuit breaker
func (rw *RedisWrapper) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.LPush(ctx, key, values...)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// BRPop wraps Redis BRPop with circuit breaker. A pop timeout (redis.Nil)
// does not count as a breaker failure.
func (rw *RedisWrapper) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.BRPop(ctx, timeout, keys...)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// LLen wraps Redis LLen with circuit breaker
func (rw *RedisWrapper) LLen(ctx context.Context, key string) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.LLen(ctx, key)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// ZAdd wraps Redis ZAdd with circuit breaker
func (rw *RedisWrapper) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.ZAdd(ctx, key, members...)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// ZRangeByScore wraps Redis ZRangeByScore with circuit breaker
func (rw *RedisWrapper) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.ZRangeByScore(ctx, key, opt)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// ZRem wraps Redis ZRem with circuit breaker
func (rw *RedisWrapper) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.ZRem(ctx, key, members...)
		return result.Err()
	})

	rw.record(err == nil)

	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// TxPipelined runs fn inside a MULTI/EXEC pipeline through the circuit breaker
func (rw *RedisWrapper) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	var cmds []redis.Cmder

	err := rw.cb.Execute(ctx, func() error {
		var err2 error
		cmds, err2 = rw.client.TxPipelined(ctx, fn)
		return err2
	})

	rw.record(err == nil)
	return cmds, err
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// GetClient returns the underlying Redis client for operations not covered by wrapper
func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
