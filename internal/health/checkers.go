package health

import (
	"context"
	"time"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

// RedisChecker probes the KV store through its circuit breaker wrapper.
type RedisChecker struct {
	rdb *circuitbreaker.RedisWrapper
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(rdb *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{rdb: rdb}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return true }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: true}

	if c.rdb.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Duration = time.Since(start)
		return result
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		result.Duration = time.Since(start)
		return result
	}

	result.Duration = time.Since(start)
	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding with high latency"
	} else {
		result.Status = StatusHealthy
	}
	return result
}

// Pinger is anything with a ctx-aware ping, e.g. the Postgres client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresChecker probes the document store.
type PostgresChecker struct {
	db Pinger
}

// NewPostgresChecker creates a Postgres health checker.
func NewPostgresChecker(db Pinger) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (c *PostgresChecker) Name() string   { return "postgres" }
func (c *PostgresChecker) Critical() bool { return true }

func (c *PostgresChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "postgres", Critical: true}

	if err := c.db.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Database ping failed"
	} else {
		result.Status = StatusHealthy
	}
	result.Duration = time.Since(start)
	return result
}

// VectorCounter is the vector store surface the checker needs.
type VectorCounter interface {
	Count(ctx context.Context) (int, error)
}

// QdrantChecker probes the vector store by counting points.
type QdrantChecker struct {
	store VectorCounter
}

// NewQdrantChecker creates a Qdrant health checker.
func NewQdrantChecker(store VectorCounter) *QdrantChecker {
	return &QdrantChecker{store: store}
}

func (c *QdrantChecker) Name() string { return "qdrant" }

// Critical is false: retrieval degrades but chat and sessions still work.
func (c *QdrantChecker) Critical() bool { return false }

func (c *QdrantChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "qdrant"}

	if _, err := c.store.Count(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Qdrant count failed"
	} else {
		result.Status = StatusHealthy
	}
	result.Duration = time.Since(start)
	return result
}
