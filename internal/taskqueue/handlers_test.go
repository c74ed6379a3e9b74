package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chunking"
	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/ingestion"
	"github.com/saga-labs/lexrag/internal/progress"
	"github.com/saga-labs/lexrag/internal/vectorstore"
)

type stubExtractor struct {
	err error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "Clause one about indemnity.\n\nClause two about termination.", nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubWriter struct{}

func (stubWriter) Upsert(_ context.Context, _ []vectorstore.Point) error { return nil }

type stubEvals struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (s *stubEvals) Run(_ context.Context, evaluationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, evaluationID)
	return s.err
}

func (s *stubEvals) runs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ran...)
}

func newTestHandlers(t *testing.T, extractErr error, evals EvaluationRunner) (*Handlers, *Queue, *progress.Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", zap.NewNop())
	q := NewQueue(rdb, zap.NewNop())
	tracker := progress.NewTracker(rdb, zap.NewNop())

	reg := chunking.NewRegistry()
	chunker, err := chunking.NewRecursiveOverlap(100, 0)
	require.NoError(t, err)
	reg.Register(chunking.PipelineRecursiveOverlap, chunker)
	pipeline := ingestion.NewPipeline(&stubExtractor{err: extractErr}, reg, stubEmbedder{}, stubWriter{}, zap.NewNop())

	return NewHandlers(pipeline, tracker, q, evals, 10*time.Second, zap.NewNop()), q, tracker, mr
}

func docTask(t *testing.T, jobID, file string) Task {
	t.Helper()
	task, err := NewTask(TypeIngestDocument, jobID, DocumentPayload{
		FilePath:     file,
		PipelineType: chunking.PipelineRecursiveOverlap,
	})
	require.NoError(t, err)
	return task
}

func TestHandleDocumentSuccessIncrementsProgress(t *testing.T) {
	h, _, tracker, _ := newTestHandlers(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tracker.Initialize(ctx, "job1", 2))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/a.pdf")))

	snap, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.ProcessedDocuments)
	assert.Equal(t, 1, snap.SuccessfulDocuments)
	assert.Equal(t, "a.pdf", snap.CurrentFile)
}

func TestHandleDocumentFailureStillCounts(t *testing.T) {
	h, _, tracker, _ := newTestHandlers(t, errors.New("corrupt pdf"), nil)
	ctx := context.Background()

	require.NoError(t, tracker.Initialize(ctx, "job1", 2))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/bad.pdf")))

	snap, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.ProcessedDocuments)
	assert.Equal(t, 1, snap.FailedDocuments)
	assert.Zero(t, snap.SuccessfulDocuments)
}

func TestHandleDocumentMalformedPayload(t *testing.T) {
	h, _, _, _ := newTestHandlers(t, nil, nil)

	err := h.HandleDocument(context.Background(), Task{Type: TypeIngestDocument, Payload: json.RawMessage(`{`)})
	require.Error(t, err)
}

func TestHandleFinalizeReschedulesWhileRunning(t *testing.T) {
	h, _, tracker, mr := newTestHandlers(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tracker.Initialize(ctx, "job1", 3))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/a.pdf")))

	task, err := NewTask(TypeIngestFinalize, "job1", FinalizePayload{
		TotalFiles: 3,
		StartTime:  float64(time.Now().Add(-time.Minute).UnixNano()) / float64(time.Second),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleFinalize(ctx, task))

	// Still processing, so a new finalizer waits in the scheduled set.
	snap, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, progress.StatusProcessing, snap.Status)
	assert.True(t, mr.Exists("tasks:scheduled"))
}

func TestHandleFinalizeCompletesJob(t *testing.T) {
	h, _, tracker, mr := newTestHandlers(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tracker.Initialize(ctx, "job1", 2))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/a.pdf")))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/b.pdf")))

	task, err := NewTask(TypeIngestFinalize, "job1", FinalizePayload{
		TotalFiles: 2,
		StartTime:  float64(time.Now().Add(-30*time.Second).UnixNano()) / float64(time.Second),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleFinalize(ctx, task))

	snap, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, progress.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.SuccessfulDocuments)
	assert.InDelta(t, 30, snap.TotalTimeSeconds, 5)
	assert.False(t, mr.Exists("tasks:scheduled"))
}

func TestHandleFinalizeCompletesDespiteStaleSnapshot(t *testing.T) {
	h, _, tracker, mr := newTestHandlers(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tracker.Initialize(ctx, "job1", 2))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/a.pdf")))
	require.NoError(t, h.HandleDocument(ctx, docTask(t, "job1", "/docs/b.pdf")))

	// Two workers' snapshot rewrites raced and the stale one landed last.
	// The counters still hold the full count and decide completion.
	stale, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, stale)
	stale.ProcessedDocuments = 1
	stale.SuccessfulDocuments = 1
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set("ingestion_progress:job1", string(data)))

	task, err := NewTask(TypeIngestFinalize, "job1", FinalizePayload{
		TotalFiles: 2,
		StartTime:  float64(time.Now().Add(-10*time.Second).UnixNano()) / float64(time.Second),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleFinalize(ctx, task))

	snap, err := tracker.Get(ctx, "job1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, progress.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.SuccessfulDocuments)
	assert.False(t, mr.Exists("tasks:scheduled"))
}

func TestHandleFinalizeNoopWhenJobGone(t *testing.T) {
	h, _, _, mr := newTestHandlers(t, nil, nil)

	task, err := NewTask(TypeIngestFinalize, "gone", FinalizePayload{TotalFiles: 2})
	require.NoError(t, err)
	require.NoError(t, h.HandleFinalize(context.Background(), task))
	assert.False(t, mr.Exists("tasks:scheduled"))
}

func TestHandleEvaluationRuns(t *testing.T) {
	evals := &stubEvals{}
	h, _, _, _ := newTestHandlers(t, nil, evals)

	task, err := NewTask(TypeEvaluationRun, "", EvaluationPayload{EvaluationID: "eval-1"})
	require.NoError(t, err)
	require.NoError(t, h.HandleEvaluation(context.Background(), task))
	assert.Equal(t, []string{"eval-1"}, evals.runs())
}

func TestWorkerPoolProcessesTasks(t *testing.T) {
	evals := &stubEvals{}
	h, q, _, _ := newTestHandlers(t, nil, evals)
	ctx := context.Background()

	pool := NewWorkerPool(q, 2, zap.NewNop())
	h.Register(pool)

	task, err := NewTask(TypeEvaluationRun, "", EvaluationPayload{EvaluationID: "eval-2"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, task))

	pool.Start(ctx)
	require.Eventually(t, func() bool { return len(evals.runs()) == 1 }, 3*time.Second, 50*time.Millisecond)
	pool.Stop()

	assert.Equal(t, []string{"eval-2"}, evals.runs())
}
