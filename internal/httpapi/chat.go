package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chat"
	"github.com/saga-labs/lexrag/internal/session"
)

// ChatService answers a user message within a session.
type ChatService interface {
	Send(ctx context.Context, sessionID, message string) (*chat.Response, error)
}

// SessionReader exposes the session store's read surface.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	ListAll(ctx context.Context, limit int) ([]*session.Session, error)
}

// ChatHandler serves /chat and /sessions.
type ChatHandler struct {
	chat     ChatService
	sessions SessionReader
	logger   *zap.Logger
}

// NewChatHandler creates the chat handler.
func NewChatHandler(chatSvc ChatService, sessions SessionReader, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{chat: chatSvc, sessions: sessions, logger: logger}
}

// RegisterRoutes registers chat routes on the provided mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("GET /sessions", h.handleListSessions)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.chat.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("Chat request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to generate answer")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *ChatHandler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := h.sessions.ListAll(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
