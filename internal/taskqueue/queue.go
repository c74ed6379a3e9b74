// Package taskqueue implements the ingestion and evaluation job machinery on
// top of Redis: a list-backed task queue with a delayed-delivery set, a
// worker pool, and the fan-out scheduler with its self-rescheduling
// finalizer.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/metrics"
)

// Task types.
const (
	TypeIngestDocument = "ingest.document"
	TypeIngestFinalize = "ingest.finalize"
	TypeEvaluationRun  = "evaluation.run"
)

const (
	queueKey     = "tasks:queue"
	scheduledKey = "tasks:scheduled"
)

// Task is one unit of queued work.
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	JobID      string          `json:"job_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DocumentPayload is the payload for ingest.document tasks.
type DocumentPayload struct {
	FilePath     string `json:"file_path"`
	PipelineType string `json:"pipeline_type"`
}

// FinalizePayload is the payload for ingest.finalize tasks.
type FinalizePayload struct {
	TotalFiles int     `json:"total_files"`
	StartTime  float64 `json:"start_time"`
}

// EvaluationPayload is the payload for evaluation.run tasks.
type EvaluationPayload struct {
	EvaluationID string `json:"evaluation_id"`
}

// NewTask builds a task with a fresh ID and marshalled payload.
func NewTask(taskType, jobID string, payload interface{}) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		JobID:      jobID,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Queue is a Redis-backed task queue. Ready tasks live in a list; delayed
// tasks wait in a sorted set scored by due time and are promoted on dequeue.
type Queue struct {
	rdb    *circuitbreaker.RedisWrapper
	logger *zap.Logger
}

// NewQueue creates a task queue.
func NewQueue(rdb *circuitbreaker.RedisWrapper, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{rdb: rdb, logger: logger}
}

// Enqueue pushes a task for immediate delivery.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	depth, err := q.rdb.LPush(ctx, queueKey, data).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	metrics.TasksEnqueued.WithLabelValues(task.Type).Inc()
	metrics.QueueDepth.Set(float64(depth))
	return nil
}

// EnqueueIn schedules a task for delivery after delay.
func (q *Queue) EnqueueIn(ctx context.Context, task Task, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, scheduledKey, redis.Z{Score: due, Member: data}).Err(); err != nil {
		return fmt.Errorf("schedule %s: %w", task.Type, err)
	}
	metrics.TasksEnqueued.WithLabelValues(task.Type).Inc()
	return nil
}

// Dequeue promotes due delayed tasks and then blocks up to timeout for the
// next ready task. Returns (nil, nil) when the queue stays empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("Failed to promote scheduled tasks", zap.Error(err))
	}

	vals, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(vals) != 2 {
		return nil, nil
	}

	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		q.logger.Warn("Dropping malformed task", zap.Error(err))
		return nil, nil
	}
	return &task, nil
}

// Depth returns the number of ready tasks.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}

func (q *Queue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil || len(members) == 0 {
		return err
	}
	for _, member := range members {
		// Only the worker that wins the ZREM delivers the task.
		removed, err := q.rdb.ZRem(ctx, scheduledKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, queueKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
