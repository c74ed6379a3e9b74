// Package chat answers user messages over retrieved document context and
// keeps the conversation in the session store.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/retrieval"
	"github.com/saga-labs/lexrag/internal/session"
)

const answerSystemPrompt = `You are a legal assistant. Answer the user's question using ONLY the
provided document excerpts. Cite the source file name after each claim, like [contract.pdf].
If the excerpts do not contain the answer, say so.`

// Completer is the LLM surface the chat service needs.
type Completer interface {
	Complete(ctx context.Context, operation, system, user string, temperature float64) (string, error)
}

// Retriever supplies document context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, useEnhancer, useReranking bool) ([]retrieval.Result, error)
}

// Options tune how chat retrieves context.
type Options struct {
	TopK             int
	UseQueryEnhancer bool
	UseReranking     bool
}

// Response is one chat turn's outcome.
type Response struct {
	Answer    string   `json:"message"`
	SessionID string   `json:"session_id"`
	Sources   []string `json:"sources"`
}

// Service wires sessions, retrieval and the LLM together.
type Service struct {
	sessions  *session.Store
	retriever Retriever
	llm       Completer
	opts      Options
	logger    *zap.Logger
}

// NewService creates a chat service.
func NewService(sessions *session.Store, retriever Retriever, llm Completer, opts Options, logger *zap.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  sessions,
		retriever: retriever,
		llm:       llm,
		opts:      opts,
		logger:    logger,
	}
}

// Send appends the user message, retrieves context, synthesizes an answer
// and appends it to the session. The user message stays recorded even when
// answer synthesis fails.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.AppendMessage(ctx, sess.ID, session.RoleUser, message, nil); err != nil {
		return nil, err
	}

	results, err := s.retriever.Retrieve(ctx, message, s.opts.TopK, s.opts.UseQueryEnhancer, s.opts.UseReranking)
	if err != nil {
		s.logger.Warn("Context retrieval failed, answering without documents",
			zap.String("session_id", sess.ID), zap.Error(err))
		results = nil
	}

	answer, err := s.llm.Complete(ctx, "chat", answerSystemPrompt, buildPrompt(message, results), 0.7)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis: %w", err)
	}

	sources := uniqueSources(results)
	if _, err := s.sessions.AppendMessage(ctx, sess.ID, session.RoleAssistant, answer,
		map[string]interface{}{"sources": sources}); err != nil {
		return nil, err
	}

	return &Response{Answer: answer, SessionID: sess.ID, Sources: sources}, nil
}

func buildPrompt(message string, results []retrieval.Result) string {
	var sb strings.Builder
	if len(results) == 0 {
		sb.WriteString("No document excerpts are available.\n\n")
	} else {
		sb.WriteString("Document excerpts:\n\n")
		for _, r := range results {
			fmt.Fprintf(&sb, "[%s]\n%s\n\n", sourceName(r.Source), r.Text)
		}
	}
	fmt.Fprintf(&sb, "Question: %s", message)
	return sb.String()
}

func sourceName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func uniqueSources(results []retrieval.Result) []string {
	seen := make(map[string]bool, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Source == "" || seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		out = append(out, r.Source)
	}
	return out
}
