package taskqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chunking"
	"github.com/saga-labs/lexrag/internal/progress"
)

// Scheduler fans folder ingestion jobs out into per-document tasks plus a
// finalizer that watches for completion.
type Scheduler struct {
	queue          *Queue
	progress       *progress.Tracker
	finalizerDelay time.Duration
	logger         *zap.Logger
}

// NewScheduler creates a job scheduler. finalizerDelay is how long after
// fan-out the first finalizer check runs.
func NewScheduler(queue *Queue, tracker *progress.Tracker, finalizerDelay time.Duration, logger *zap.Logger) *Scheduler {
	if finalizerDelay <= 0 {
		finalizerDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:          queue,
		progress:       tracker,
		finalizerDelay: finalizerDelay,
		logger:         logger,
	}
}

// StartFolderJob enumerates matching files under folderPath and enqueues one
// ingestion task per file plus the finalizer. The returned job ID is valid
// even when scheduling fails: setup errors are recorded as a failed job
// rather than returned, so callers can always poll progress.
func (s *Scheduler) StartFolderJob(ctx context.Context, folderPath string, fileTypes []string, pipelineType string) (string, error) {
	jobID := uuid.New().String()
	start := time.Now()

	if len(fileTypes) == 0 {
		fileTypes = []string{"pdf"}
	}
	if pipelineType == "" {
		pipelineType = chunking.PipelineRecursiveOverlap
	}

	abs, err := filepath.Abs(folderPath)
	if err != nil {
		abs = folderPath
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("folder not found: %s", abs)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}

	files, err := listFiles(abs, fileTypes)
	if err != nil {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("failed to list folder %s: %v", abs, err)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}
	if len(files) == 0 {
		if cerr := s.progress.SetCompleted(ctx, jobID, 0, 0, time.Since(start)); cerr != nil {
			return jobID, cerr
		}
		return jobID, nil
	}

	if err := s.progress.Initialize(ctx, jobID, len(files)); err != nil {
		return jobID, err
	}

	for _, file := range files {
		task, err := NewTask(TypeIngestDocument, jobID, DocumentPayload{
			FilePath:     file,
			PipelineType: pipelineType,
		})
		if err == nil {
			err = s.queue.Enqueue(ctx, task)
		}
		if err != nil {
			if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("failed to schedule %s: %v", file, err)); ferr != nil {
				return jobID, ferr
			}
			return jobID, nil
		}
	}

	if err := s.scheduleFinalizer(ctx, jobID, len(files), start, s.finalizerDelay); err != nil {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("failed to schedule finalizer: %v", err)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}

	s.logger.Info("Folder ingestion job scheduled",
		zap.String("job_id", jobID),
		zap.String("folder", abs),
		zap.Int("documents", len(files)),
		zap.String("pipeline", pipelineType),
	)
	return jobID, nil
}

// StartSingleFile enqueues one document as its own job. Unsupported
// extensions are rejected before a job is created.
func (s *Scheduler) StartSingleFile(ctx context.Context, filePath, pipelineType string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if ext != "pdf" {
		return "", fmt.Errorf("unsupported file extension %q: only pdf is supported", ext)
	}
	if pipelineType == "" {
		pipelineType = chunking.PipelineRecursiveOverlap
	}

	jobID := uuid.New().String()
	start := time.Now()

	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}
	if info, err := os.Stat(abs); err != nil || info.IsDir() {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("file not found: %s", abs)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}

	if err := s.progress.Initialize(ctx, jobID, 1); err != nil {
		return jobID, err
	}

	task, err := NewTask(TypeIngestDocument, jobID, DocumentPayload{
		FilePath:     abs,
		PipelineType: pipelineType,
	})
	if err == nil {
		err = s.queue.Enqueue(ctx, task)
	}
	if err != nil {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("failed to schedule %s: %v", abs, err)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}

	if err := s.scheduleFinalizer(ctx, jobID, 1, start, s.finalizerDelay); err != nil {
		if ferr := s.progress.SetFailed(ctx, jobID, fmt.Sprintf("failed to schedule finalizer: %v", err)); ferr != nil {
			return jobID, ferr
		}
		return jobID, nil
	}

	s.logger.Info("Single file ingestion scheduled",
		zap.String("job_id", jobID),
		zap.String("file", abs),
	)
	return jobID, nil
}

// ScheduleEvaluation enqueues an evaluation run.
func (s *Scheduler) ScheduleEvaluation(ctx context.Context, evaluationID string) error {
	task, err := NewTask(TypeEvaluationRun, "", EvaluationPayload{EvaluationID: evaluationID})
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, task)
}

func (s *Scheduler) scheduleFinalizer(ctx context.Context, jobID string, totalFiles int, start time.Time, delay time.Duration) error {
	task, err := NewTask(TypeIngestFinalize, jobID, FinalizePayload{
		TotalFiles: totalFiles,
		StartTime:  float64(start.UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return err
	}
	return s.queue.EnqueueIn(ctx, task, delay)
}

func listFiles(dir string, fileTypes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(fileTypes))
	for _, ft := range fileTypes {
		wanted[strings.ToLower(strings.TrimPrefix(ft, "."))] = true
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		if wanted[ext] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
