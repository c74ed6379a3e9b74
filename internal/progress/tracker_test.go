package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", zap.NewNop())
	return NewTracker(rdb, zap.NewNop()), mr
}

func TestInitializeAndGet(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 10))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StatusProcessing, snap.Status)
	assert.Equal(t, 10, snap.TotalDocuments)
	assert.Equal(t, 10, snap.DocumentsLeft)
	assert.Equal(t, 0.0, snap.ProgressPercentage)
	assert.Positive(t, snap.StartTime)

	// Counters and snapshot carry a 1h TTL.
	assert.Positive(t, mr.TTL("ingestion_progress:job1"))
	assert.Positive(t, mr.TTL("ingestion_processed:job1"))
}

func TestGetUnknownJobReturnsNil(t *testing.T) {
	tr, _ := newTestTracker(t)

	snap, err := tr.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestIncrementUpdatesSnapshot(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 4))
	require.NoError(t, tr.Increment(ctx, "job1", true, "a.pdf", nil))
	est := 30
	require.NoError(t, tr.Increment(ctx, "job1", false, "b.pdf", &est))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.ProcessedDocuments)
	assert.Equal(t, 1, snap.SuccessfulDocuments)
	assert.Equal(t, 1, snap.FailedDocuments)
	assert.Equal(t, 2, snap.DocumentsLeft)
	assert.Equal(t, 50.0, snap.ProgressPercentage)
	assert.Equal(t, "b.pdf", snap.CurrentFile)
	require.NotNil(t, snap.EstimatedTimeRemSecs)
	assert.Equal(t, 30, *snap.EstimatedTimeRemSecs)
}

func TestConcurrentIncrementsAreAtomic(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	const total = 50
	require.NoError(t, tr.Initialize(ctx, "job1", total))

	var wg sync.WaitGroup
	for i := 1; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, tr.Increment(ctx, "job1", i%5 != 0, "file.pdf", nil))
		}(i)
	}
	wg.Wait()
	// Last increment runs alone so the final snapshot reflects all counters.
	require.NoError(t, tr.Increment(ctx, "job1", false, "file.pdf", nil))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, total, snap.ProcessedDocuments)
	assert.Equal(t, 40, snap.SuccessfulDocuments)
	assert.Equal(t, 10, snap.FailedDocuments)
	assert.Equal(t, 100.0, snap.ProgressPercentage)
}

func TestIncrementAfterCleanupIsNoop(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 2))
	mr.Del("ingestion_progress:job1")

	// Snapshot is gone: increment must not recreate it.
	require.NoError(t, tr.Increment(ctx, "job1", true, "a.pdf", nil))
	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCountersReadLiveValues(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 3))
	require.NoError(t, tr.Increment(ctx, "job1", true, "a.pdf", nil))
	require.NoError(t, tr.Increment(ctx, "job1", false, "b.pdf", nil))

	processed, successful, failed, err := tr.Counters(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, successful)
	assert.Equal(t, 1, failed)

	// Missing keys read as zero.
	processed, successful, failed, err = tr.Counters(ctx, "nope")
	require.NoError(t, err)
	assert.Zero(t, processed+successful+failed)
}

func TestIncrementAfterTerminalStatusIsNoop(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 5))
	require.NoError(t, tr.SetFailed(ctx, "job1", "folder not found"))

	// A straggler finishing after the job went terminal must not flip
	// the snapshot back to processing.
	require.NoError(t, tr.Increment(ctx, "job1", true, "late.pdf", nil))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "folder not found", snap.ErrorMessage)

	// The recreated counters carry a TTL so they cannot linger.
	assert.Positive(t, mr.TTL("ingestion_processed:job1"))
}

func TestSetCompletedDeletesCounters(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 3))
	require.NoError(t, tr.Increment(ctx, "job1", true, "a.pdf", nil))
	require.NoError(t, tr.SetCompleted(ctx, "job1", 2, 1, 90*time.Second))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.TotalDocuments)
	assert.Equal(t, 100.0, snap.ProgressPercentage)
	assert.Equal(t, 90.0, snap.TotalTimeSeconds)

	assert.False(t, mr.Exists("ingestion_processed:job1"))
	assert.False(t, mr.Exists("ingestion_successful:job1"))
	assert.False(t, mr.Exists("ingestion_failed:job1"))
}

func TestSetFailedKeepsErrorMessage(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 3))
	require.NoError(t, tr.SetFailed(ctx, "job1", "folder not found"))

	snap, err := tr.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "folder not found", snap.ErrorMessage)
	assert.False(t, mr.Exists("ingestion_processed:job1"))
}

func TestListActive(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Initialize(ctx, "job1", 1))
	require.NoError(t, tr.Initialize(ctx, "job2", 2))

	snaps, err := tr.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	ids := map[string]bool{}
	for _, s := range snaps {
		ids[s.JobID] = true
	}
	assert.True(t, ids["job1"] && ids["job2"])
}
