package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/ingestion"
	"github.com/saga-labs/lexrag/internal/progress"
)

// EvaluationRunner executes a previously created evaluation.
type EvaluationRunner interface {
	Run(ctx context.Context, evaluationID string) error
}

// Handlers holds the dependencies shared by all task handlers.
type Handlers struct {
	pipeline *ingestion.Pipeline
	progress *progress.Tracker
	queue    *Queue
	evals    EvaluationRunner
	backoff  time.Duration
	logger   *zap.Logger
}

// NewHandlers wires the task handlers. backoff is the finalizer recheck
// interval; evals may be nil when evaluation runs are disabled.
func NewHandlers(pipeline *ingestion.Pipeline, tracker *progress.Tracker, queue *Queue, evals EvaluationRunner, backoff time.Duration, logger *zap.Logger) *Handlers {
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		pipeline: pipeline,
		progress: tracker,
		queue:    queue,
		evals:    evals,
		backoff:  backoff,
		logger:   logger,
	}
}

// Register binds all handlers onto the pool.
func (h *Handlers) Register(pool *WorkerPool) {
	pool.Register(TypeIngestDocument, h.HandleDocument)
	pool.Register(TypeIngestFinalize, h.HandleFinalize)
	pool.Register(TypeEvaluationRun, h.HandleEvaluation)
}

// HandleDocument ingests one document and records the outcome against the
// job counters. Pipeline failures are absorbed into the failed counter so a
// bad document never stalls the job.
func (h *Handlers) HandleDocument(ctx context.Context, task Task) error {
	var payload DocumentPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode document payload: %w", err)
	}

	estimated := h.estimateRemaining(ctx, task.JobID)

	_, err := h.pipeline.Process(ctx, payload.FilePath, payload.PipelineType)
	success := err == nil

	if ierr := h.progress.Increment(ctx, task.JobID, success, filepath.Base(payload.FilePath), estimated); ierr != nil {
		return ierr
	}
	return nil
}

// estimateRemaining projects seconds left from the job's average time per
// processed document. Returns nil until at least one document has finished.
func (h *Handlers) estimateRemaining(ctx context.Context, jobID string) *int {
	snap, err := h.progress.Get(ctx, jobID)
	if err != nil || snap == nil || snap.StartTime == 0 {
		return nil
	}
	processed := snap.ProcessedDocuments + 1
	if processed <= 1 {
		return nil
	}
	elapsed := float64(time.Now().UnixNano())/float64(time.Second) - snap.StartTime
	avgPerDoc := elapsed / float64(processed)
	est := int(avgPerDoc * float64(snap.TotalDocuments-processed))
	if est < 0 {
		est = 0
	}
	return &est
}

// HandleFinalize checks whether all documents of a job have been counted.
// If not, it reschedules itself; once done, it writes the terminal snapshot.
func (h *Handlers) HandleFinalize(ctx context.Context, task Task) error {
	var payload FinalizePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode finalize payload: %w", err)
	}

	snap, err := h.progress.Get(ctx, task.JobID)
	if err != nil {
		return err
	}
	if snap == nil || snap.Status != progress.StatusProcessing {
		// Job already finished, failed, or expired.
		return nil
	}

	// Completion is decided from the counters, not the snapshot: snapshot
	// rewrites from concurrent workers can race and land stale, while the
	// INCRs never lose an update.
	processed, successful, failed, err := h.progress.Counters(ctx, task.JobID)
	if err != nil {
		return err
	}

	if processed < payload.TotalFiles {
		h.logger.Debug("Job not finished yet, rescheduling finalizer",
			zap.String("job_id", task.JobID),
			zap.Int("processed", processed),
			zap.Int("total", payload.TotalFiles),
		)
		next, err := NewTask(TypeIngestFinalize, task.JobID, payload)
		if err != nil {
			return err
		}
		return h.queue.EnqueueIn(ctx, next, h.backoff)
	}

	totalTime := time.Duration((float64(time.Now().UnixNano())/float64(time.Second) - payload.StartTime) * float64(time.Second))
	return h.progress.SetCompleted(ctx, task.JobID, successful, failed, totalTime)
}

// HandleEvaluation runs a scheduled evaluation.
func (h *Handlers) HandleEvaluation(ctx context.Context, task Task) error {
	if h.evals == nil {
		return fmt.Errorf("evaluation runner not configured")
	}
	var payload EvaluationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode evaluation payload: %w", err)
	}
	return h.evals.Run(ctx, payload.EvaluationID)
}
