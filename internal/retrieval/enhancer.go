package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const enhancerSystemPrompt = `You are a legal search expert. Given a user question about legal
documents, produce alternative search queries that surface relevant passages: rephrase with
legal terminology, expand abbreviations, and split compound questions. Respond with JSON:
{"enhanced_queries": ["query one", "query two"]}.`

// JSONCompleter is the LLM surface the retrieval package needs.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, operation, system, user string, temperature float64, out any) error
}

// QueryEnhancer expands a question into search query variants via the LLM.
// It is best-effort: every failure path returns just the original question.
type QueryEnhancer struct {
	llm    JSONCompleter
	logger *zap.Logger
}

// NewQueryEnhancer creates a query enhancer.
func NewQueryEnhancer(llm JSONCompleter, logger *zap.Logger) *QueryEnhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEnhancer{llm: llm, logger: logger}
}

// Enhance returns up to maxVariants queries with the original always first.
func (e *QueryEnhancer) Enhance(ctx context.Context, query string, maxVariants int) []string {
	if maxVariants < 1 {
		maxVariants = 1
	}
	out := []string{query}
	if maxVariants == 1 || e.llm == nil {
		return out
	}

	var parsed struct {
		EnhancedQueries []string `json:"enhanced_queries"`
	}
	user := fmt.Sprintf("Original question: %s\n\nGenerate up to %d alternative queries.", query, maxVariants-1)
	if err := e.llm.CompleteJSON(ctx, "query_enhance", enhancerSystemPrompt, user, 0.3, &parsed); err != nil {
		e.logger.Warn("Query enhancement failed, using original query", zap.Error(err))
		return out
	}

	seen := map[string]bool{query: true}
	for _, variant := range parsed.EnhancedQueries {
		variant = strings.TrimSpace(variant)
		if variant == "" || seen[variant] {
			continue
		}
		seen[variant] = true
		out = append(out, variant)
		if len(out) == maxVariants {
			break
		}
	}
	return out
}
