package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/evaluation"
)

// EvaluationService creates and reads evaluations.
type EvaluationService interface {
	Start(ctx context.Context, p evaluation.StartParams) (*evaluation.Evaluation, error)
	Get(ctx context.Context, id string) (*evaluation.Evaluation, error)
	List(ctx context.Context, limit int) ([]*evaluation.Evaluation, error)
	Results(ctx context.Context, id string) ([]*evaluation.Result, error)
}

// EvaluationScheduler enqueues evaluation runs onto the task queue.
type EvaluationScheduler interface {
	ScheduleEvaluation(ctx context.Context, evaluationID string) error
}

// EvaluationHandler serves /evaluation.
type EvaluationHandler struct {
	evals     EvaluationService
	scheduler EvaluationScheduler
	logger    *zap.Logger
}

// NewEvaluationHandler creates the evaluation handler.
func NewEvaluationHandler(evals EvaluationService, scheduler EvaluationScheduler, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{evals: evals, scheduler: scheduler, logger: logger}
}

// RegisterRoutes registers evaluation routes on the provided mux.
func (h *EvaluationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /evaluation/start", h.handleStart)
	mux.HandleFunc("GET /evaluation/{id}", h.handleGet)
	mux.HandleFunc("GET /evaluations", h.handleList)
}

func (h *EvaluationHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var params evaluation.StartParams
	if !decodeJSON(w, r, &params) {
		return
	}

	eval, err := h.evals.Start(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run itself happens on the worker pool.
	if err := h.scheduler.ScheduleEvaluation(r.Context(), eval.ID); err != nil {
		h.logger.Error("Failed to schedule evaluation run",
			zap.String("evaluation_id", eval.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to schedule evaluation")
		return
	}
	writeJSON(w, http.StatusAccepted, eval)
}

func (h *EvaluationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	eval, err := h.evals.Get(r.Context(), id)
	if errors.Is(err, evaluation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load evaluation", zap.String("evaluation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load evaluation")
		return
	}

	resp := map[string]interface{}{"evaluation": eval}
	if r.URL.Query().Get("include_results") == "true" {
		results, err := h.evals.Results(r.Context(), id)
		if err != nil {
			h.logger.Warn("Failed to load evaluation results",
				zap.String("evaluation_id", id), zap.Error(err))
		} else {
			resp["results"] = results
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *EvaluationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	evals, err := h.evals.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list evaluations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list evaluations")
		return
	}
	if evals == nil {
		evals = []*evaluation.Evaluation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"evaluations": evals})
}
