package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/retrieval"
)

// Retriever runs one-shot retrieval queries.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, useEnhancer, useReranking bool) ([]retrieval.Result, error)
}

// RetrieveHandler serves /retrieve.
type RetrieveHandler struct {
	retriever Retriever
	logger    *zap.Logger
}

// NewRetrieveHandler creates the retrieval handler.
func NewRetrieveHandler(retriever Retriever, logger *zap.Logger) *RetrieveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrieveHandler{retriever: retriever, logger: logger}
}

// RegisterRoutes registers retrieval routes on the provided mux.
func (h *RetrieveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /retrieve", h.handleRetrieve)
}

type retrieveRequest struct {
	Query            string `json:"query"`
	TopK             int    `json:"top_k"`
	UseQueryEnhancer bool   `json:"use_query_enhancer"`
	UseReranking     bool   `json:"use_reranking"`
	PipelineType     string `json:"pipeline_type,omitempty"`
}

func (h *RetrieveHandler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	results, err := h.retriever.Retrieve(r.Context(), req.Query, req.TopK, req.UseQueryEnhancer, req.UseReranking)
	if err != nil {
		h.logger.Error("Retrieval failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": results})
}
