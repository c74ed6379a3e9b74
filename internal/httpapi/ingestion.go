package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/progress"
)

// JobScheduler fans ingestion jobs out onto the task queue.
type JobScheduler interface {
	StartFolderJob(ctx context.Context, folderPath string, fileTypes []string, pipelineType string) (string, error)
	StartSingleFile(ctx context.Context, filePath, pipelineType string) (string, error)
}

// ProgressReader reads ingestion job snapshots.
type ProgressReader interface {
	Get(ctx context.Context, jobID string) (*progress.Snapshot, error)
	ListActive(ctx context.Context) ([]progress.Snapshot, error)
}

// IngestionHandler serves /ingestion.
type IngestionHandler struct {
	scheduler JobScheduler
	progress  ProgressReader
	logger    *zap.Logger
}

// NewIngestionHandler creates the ingestion handler.
func NewIngestionHandler(scheduler JobScheduler, progressReader ProgressReader, logger *zap.Logger) *IngestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionHandler{scheduler: scheduler, progress: progressReader, logger: logger}
}

// RegisterRoutes registers ingestion routes on the provided mux.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingestion/start_job", h.handleStartJob)
	mux.HandleFunc("POST /ingestion/start_single_file", h.handleStartSingleFile)
	mux.HandleFunc("GET /ingestion/status/{job_id}", h.handleStatus)
	mux.HandleFunc("GET /ingestion/jobs", h.handleListJobs)
}

type startJobRequest struct {
	FolderPath   string   `json:"folder_path"`
	FileTypes    []string `json:"file_types,omitempty"`
	PipelineType string   `json:"pipeline_type,omitempty"`
}

func (h *IngestionHandler) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FolderPath == "" {
		writeError(w, http.StatusBadRequest, "folder_path is required")
		return
	}

	// Scheduling errors land in the job snapshot, not in this response;
	// the client polls the status endpoint either way.
	jobID, err := h.scheduler.StartFolderJob(r.Context(), req.FolderPath, req.FileTypes, req.PipelineType)
	if err != nil {
		h.logger.Error("Failed to start ingestion job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "started"})
}

type startSingleFileRequest struct {
	FilePath     string `json:"file_path"`
	FileType     string `json:"file_type,omitempty"`
	PipelineType string `json:"pipeline_type,omitempty"`
}

func (h *IngestionHandler) handleStartSingleFile(w http.ResponseWriter, r *http.Request) {
	var req startSingleFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	jobID, err := h.scheduler.StartSingleFile(r.Context(), req.FilePath, req.PipelineType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "started"})
}

func (h *IngestionHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	snap, err := h.progress.Get(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to read job progress", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read job progress")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *IngestionHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.progress.ListActive(r.Context())
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []progress.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}
