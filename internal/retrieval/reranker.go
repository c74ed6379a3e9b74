package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	rerankMaxDocuments = 20
	rerankDocTruncate  = 500
)

const rerankerSystemPrompt = `You are a legal relevance judge. Score each numbered document for
how well it answers the question, from 0 (irrelevant) to 10 (directly answers). Respond with
JSON: {"ranked_documents": [{"index": 0, "relevance_score": 8.5, "reasoning": "..."}]}.
Include every document exactly once.`

// Document is one candidate passage handed to the reranker.
type Document struct {
	Text   string
	Source string
}

// Reranker orders candidate passages by LLM-judged relevance. On any
// failure it degrades to the input order truncated to topK.
type Reranker struct {
	llm    JSONCompleter
	logger *zap.Logger
}

// NewReranker creates a reranker.
func NewReranker(llm JSONCompleter, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{llm: llm, logger: logger}
}

// Rerank returns at most topK documents ordered by relevance to question.
func (r *Reranker) Rerank(ctx context.Context, question string, docs []Document, topK int) []Document {
	if len(docs) > rerankMaxDocuments {
		docs = docs[:rerankMaxDocuments]
	}
	fallback := docs
	if len(fallback) > topK {
		fallback = fallback[:topK]
	}
	if len(docs) == 0 || r.llm == nil {
		return fallback
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nDocuments:\n", question)
	for i, doc := range docs {
		text := doc.Text
		if runes := []rune(text); len(runes) > rerankDocTruncate {
			text = string(runes[:rerankDocTruncate])
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, text)
	}

	var parsed struct {
		RankedDocuments []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
			Reasoning      string  `json:"reasoning"`
		} `json:"ranked_documents"`
	}
	if err := r.llm.CompleteJSON(ctx, "rerank", rerankerSystemPrompt, sb.String(), 0.1, &parsed); err != nil {
		r.logger.Warn("Reranking failed, keeping original order", zap.Error(err))
		return fallback
	}
	if len(parsed.RankedDocuments) == 0 {
		return fallback
	}

	sort.SliceStable(parsed.RankedDocuments, func(i, j int) bool {
		return parsed.RankedDocuments[i].RelevanceScore > parsed.RankedDocuments[j].RelevanceScore
	})

	seen := make(map[int]bool, len(docs))
	out := make([]Document, 0, topK)
	for _, ranked := range parsed.RankedDocuments {
		if ranked.Index < 0 || ranked.Index >= len(docs) || seen[ranked.Index] {
			continue
		}
		seen[ranked.Index] = true
		out = append(out, docs[ranked.Index])
		if len(out) == topK {
			break
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
