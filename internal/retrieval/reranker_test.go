package retrieval

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func docs(texts ...string) []Document {
	out := make([]Document, len(texts))
	for i, text := range texts {
		out[i] = Document{Text: text, Source: "/docs/" + text + ".pdf"}
	}
	return out
}

func TestRerankOrdersByScore(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"rerank": `{"ranked_documents": [
			{"index": 1, "relevance_score": 9.5},
			{"index": 2, "relevance_score": 7},
			{"index": 0, "relevance_score": 2}
		]}`,
	}}
	r := NewReranker(llm, zap.NewNop())

	out := r.Rerank(context.Background(), "q", docs("a", "b", "c"), 3)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Text)
	assert.Equal(t, "c", out[1].Text)
	assert.Equal(t, "a", out[2].Text)
}

func TestRerankIgnoresInvalidAndDuplicateIndices(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"rerank": `{"ranked_documents": [
			{"index": 7, "relevance_score": 10},
			{"index": 1, "relevance_score": 9},
			{"index": 1, "relevance_score": 8},
			{"index": -1, "relevance_score": 7},
			{"index": 0, "relevance_score": 6}
		]}`,
	}}
	r := NewReranker(llm, zap.NewNop())

	out := r.Rerank(context.Background(), "q", docs("a", "b"), 5)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Text)
	assert.Equal(t, "a", out[1].Text)
}

func TestRerankCapsCandidatesAtTwenty(t *testing.T) {
	var texts []string
	for i := 0; i < 30; i++ {
		texts = append(texts, strings.Repeat("x", i+1))
	}
	llm := &fakeLLM{responses: map[string]string{
		"rerank": `{"ranked_documents": [{"index": 19, "relevance_score": 10}, {"index": 25, "relevance_score": 9}]}`,
	}}
	r := NewReranker(llm, zap.NewNop())

	// Index 25 is beyond the cap and must be dropped.
	out := r.Rerank(context.Background(), "q", docs(texts...), 5)
	require.Len(t, out, 1)
	assert.Equal(t, texts[19], out[0].Text)
}

func TestRerankEmptyResponseFallsBack(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"rerank": `{"ranked_documents": []}`,
	}}
	r := NewReranker(llm, zap.NewNop())

	out := r.Rerank(context.Background(), "q", docs("a", "b", "c"), 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "b", out[1].Text)
}

func TestRerankTruncatesDocumentsByRune(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"rerank": `{"ranked_documents": [{"index": 0, "relevance_score": 10}]}`,
	}}
	r := NewReranker(llm, zap.NewNop())

	long := strings.Repeat("§", 600)
	out := r.Rerank(context.Background(), "q", []Document{{Text: long, Source: "/docs/a.pdf"}}, 1)
	require.Len(t, out, 1)

	// Truncation must not split a multi-byte rune.
	assert.True(t, utf8.ValidString(llm.lastUser))
	assert.Contains(t, llm.lastUser, strings.Repeat("§", 500))
	assert.NotContains(t, llm.lastUser, strings.Repeat("§", 501))
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(&fakeLLM{}, zap.NewNop())

	out := r.Rerank(context.Background(), "q", nil, 5)
	assert.Empty(t, out)
}
