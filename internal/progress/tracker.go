// Package progress tracks ingestion job progress in Redis using atomic
// counters shared by concurrent workers.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

// Job status values.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const counterTTL = time.Hour

func progressKey(jobID string) string   { return "ingestion_progress:" + jobID }
func processedKey(jobID string) string  { return "ingestion_processed:" + jobID }
func successfulKey(jobID string) string { return "ingestion_successful:" + jobID }
func failedKey(jobID string) string     { return "ingestion_failed:" + jobID }

// Snapshot is the job progress document stored under ingestion_progress:<id>.
type Snapshot struct {
	JobID                string  `json:"job_id"`
	Status               string  `json:"status"`
	TotalDocuments       int     `json:"total_documents"`
	ProcessedDocuments   int     `json:"processed_documents"`
	SuccessfulDocuments  int     `json:"successful_documents"`
	FailedDocuments      int     `json:"failed_documents"`
	DocumentsLeft        int     `json:"documents_left"`
	CurrentFile          string  `json:"current_file,omitempty"`
	EstimatedTimeRemSecs *int    `json:"estimated_time_remaining_seconds,omitempty"`
	ProgressPercentage   float64 `json:"progress_percentage"`
	StartTime            float64 `json:"start_time,omitempty"`
	TotalTimeSeconds     float64 `json:"total_time_seconds,omitempty"`
	ErrorMessage         string  `json:"error_message,omitempty"`
	UpdatedAt            float64 `json:"updated_at"`
}

// Tracker manages job progress state in Redis.
type Tracker struct {
	rdb    *circuitbreaker.RedisWrapper
	logger *zap.Logger
}

// NewTracker creates a progress tracker.
func NewTracker(rdb *circuitbreaker.RedisWrapper, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{rdb: rdb, logger: logger}
}

// Initialize sets up counters and the initial snapshot for a new job.
func (t *Tracker) Initialize(ctx context.Context, jobID string, totalDocuments int) error {
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, processedKey(jobID), 0, counterTTL)
		pipe.Set(ctx, successfulKey(jobID), 0, counterTTL)
		pipe.Set(ctx, failedKey(jobID), 0, counterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize counters for %s: %w", jobID, err)
	}

	snap := Snapshot{
		JobID:              jobID,
		Status:             StatusProcessing,
		TotalDocuments:     totalDocuments,
		DocumentsLeft:      totalDocuments,
		CurrentFile:        "Starting parallel processing...",
		ProgressPercentage: 0,
		StartTime:          unixNow(),
		UpdatedAt:          unixNow(),
	}
	return t.writeSnapshot(ctx, jobID, snap)
}

// Increment atomically records one processed document and rewrites the
// snapshot from the counter values. Safe to call from concurrent workers.
func (t *Tracker) Increment(ctx context.Context, jobID string, success bool, currentFile string, estimatedRemaining *int) error {
	var processedCmd *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		processedCmd = pipe.Incr(ctx, processedKey(jobID))
		pipe.Expire(ctx, processedKey(jobID), counterTTL)
		if success {
			pipe.Incr(ctx, successfulKey(jobID))
			pipe.Expire(ctx, successfulKey(jobID), counterTTL)
		} else {
			pipe.Incr(ctx, failedKey(jobID))
			pipe.Expire(ctx, failedKey(jobID), counterTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment counters for %s: %w", jobID, err)
	}
	processed := int(processedCmd.Val())

	successful, _ := t.rdb.Get(ctx, successfulKey(jobID)).Int()
	failed, _ := t.rdb.Get(ctx, failedKey(jobID)).Int()

	current, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if current == nil {
		// Job snapshot expired or was cleaned up; nothing to update.
		return nil
	}
	if current.Status != StatusProcessing {
		// A straggler finishing after the job went terminal must not
		// resurrect it. The recreated counters expire with their TTL.
		return nil
	}

	total := current.TotalDocuments
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(processed)/float64(total)*10000) / 100
	}
	left := total - processed
	if left < 0 {
		left = 0
	}

	snap := Snapshot{
		JobID:                jobID,
		Status:               StatusProcessing,
		TotalDocuments:       total,
		ProcessedDocuments:   processed,
		SuccessfulDocuments:  successful,
		FailedDocuments:      failed,
		DocumentsLeft:        left,
		CurrentFile:          currentFile,
		EstimatedTimeRemSecs: estimatedRemaining,
		ProgressPercentage:   pct,
		StartTime:            current.StartTime,
		UpdatedAt:            unixNow(),
	}
	return t.writeSnapshot(ctx, jobID, snap)
}

// Counters returns the live counter values for a job. Concurrent snapshot
// rewrites can race and land stale, but INCR never loses an update, so
// completion decisions must read these rather than the snapshot. Missing
// keys read as zero.
func (t *Tracker) Counters(ctx context.Context, jobID string) (processed, successful, failed int, err error) {
	if processed, err = t.counterValue(ctx, processedKey(jobID)); err != nil {
		return 0, 0, 0, err
	}
	if successful, err = t.counterValue(ctx, successfulKey(jobID)); err != nil {
		return 0, 0, 0, err
	}
	if failed, err = t.counterValue(ctx, failedKey(jobID)); err != nil {
		return 0, 0, 0, err
	}
	return processed, successful, failed, nil
}

func (t *Tracker) counterValue(ctx context.Context, key string) (int, error) {
	v, err := t.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return v, nil
}

// SetCompleted writes the terminal snapshot and deletes the counters.
func (t *Tracker) SetCompleted(ctx context.Context, jobID string, successful, failed int, totalTime time.Duration) error {
	total := successful + failed
	snap := Snapshot{
		JobID:               jobID,
		Status:              StatusCompleted,
		TotalDocuments:      total,
		ProcessedDocuments:  total,
		SuccessfulDocuments: successful,
		FailedDocuments:     failed,
		DocumentsLeft:       0,
		ProgressPercentage:  100,
		TotalTimeSeconds:    totalTime.Seconds(),
		UpdatedAt:           unixNow(),
	}
	if err := t.writeSnapshot(ctx, jobID, snap); err != nil {
		return err
	}
	t.cleanupCounters(ctx, jobID)

	t.logger.Info("Ingestion job completed",
		zap.String("job_id", jobID),
		zap.Int("successful", successful),
		zap.Int("failed", failed),
		zap.Duration("total_time", totalTime),
	)
	return nil
}

// SetFailed marks the job failed and deletes the counters.
func (t *Tracker) SetFailed(ctx context.Context, jobID, errorMessage string) error {
	snap := Snapshot{
		JobID:        jobID,
		Status:       StatusFailed,
		ErrorMessage: errorMessage,
		UpdatedAt:    unixNow(),
	}
	if err := t.writeSnapshot(ctx, jobID, snap); err != nil {
		return err
	}
	t.cleanupCounters(ctx, jobID)

	t.logger.Warn("Ingestion job failed",
		zap.String("job_id", jobID),
		zap.String("error", errorMessage),
	)
	return nil
}

// Get returns the current snapshot, or nil when the job is unknown or its
// snapshot has expired.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	data, err := t.rdb.Get(ctx, progressKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress for %s: %w", jobID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

// ListActive returns snapshots for all jobs with a live progress key.
func (t *Tracker) ListActive(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	var cursor uint64
	for {
		keys, next, err := t.rdb.Scan(ctx, cursor, "ingestion_progress:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan progress keys: %w", err)
		}
		for _, key := range keys {
			jobID := key[len("ingestion_progress:"):]
			snap, err := t.Get(ctx, jobID)
			if err != nil || snap == nil {
				continue
			}
			out = append(out, *snap)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (t *Tracker) writeSnapshot(ctx context.Context, jobID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := t.rdb.SetEx(ctx, progressKey(jobID), data, counterTTL).Err(); err != nil {
		return fmt.Errorf("write progress for %s: %w", jobID, err)
	}
	return nil
}

func (t *Tracker) cleanupCounters(ctx context.Context, jobID string) {
	if err := t.rdb.Del(ctx, processedKey(jobID), successfulKey(jobID), failedKey(jobID)).Err(); err != nil {
		t.logger.Warn("Failed to clean up progress counters", zap.String("job_id", jobID), zap.Error(err))
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
