package taskqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", zap.NewNop())
	return NewQueue(rdb, zap.NewNop()), mr
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := NewTask(TypeIngestDocument, "job1", DocumentPayload{FilePath: "/docs/a.pdf", PipelineType: "recursive_overlap"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, TypeIngestDocument, got.Type)
	assert.Equal(t, "job1", got.JobID)

	var payload DocumentPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "/docs/a.pdf", payload.FilePath)
}

func TestDequeueIsFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, job := range []string{"a", "b", "c"} {
		task, err := NewTask(TypeIngestDocument, job, DocumentPayload{})
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, task))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.JobID)
	}
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)

	got, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScheduledTaskNotDeliveredEarly(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	task, err := NewTask(TypeIngestFinalize, "job1", FinalizePayload{TotalFiles: 3})
	require.NoError(t, err)
	require.NoError(t, q.EnqueueIn(ctx, task, time.Hour))

	got, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.True(t, mr.Exists("tasks:scheduled"))
}

func TestScheduledTaskDeliveredWhenDue(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	task, err := NewTask(TypeIngestFinalize, "job1", FinalizePayload{TotalFiles: 3})
	require.NoError(t, err)
	require.NoError(t, q.EnqueueIn(ctx, task, -time.Second))

	got, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.False(t, mr.Exists("tasks:scheduled"))
}

func TestDepth(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	task, err := NewTask(TypeIngestDocument, "job1", DocumentPayload{})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, task))

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)
}
