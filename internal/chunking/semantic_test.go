package chunking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePropositioner struct {
	propositions []string
	err          error
}

func (f *fakePropositioner) Propositions(_ context.Context, _ string) ([]string, error) {
	return f.propositions, f.err
}

// topicEmbedder embeds each window as a 2-d vector counting topic markers,
// so windows from different topics are far apart in cosine distance.
type topicEmbedder struct{}

func (topicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{
			float32(strings.Count(text, "contract")) + 0.01,
			float32(strings.Count(text, "weather")) + 0.01,
		}
	}
	return out, nil
}

func TestSemanticSplitsAtTopicBoundary(t *testing.T) {
	prop := &fakePropositioner{propositions: []string{
		"The contract binds both parties.",
		"A contract requires consideration.",
		"The contract may be voided.",
		"The weather is sunny today.",
		"Tomorrow the weather turns rainy.",
		"Next week the weather improves.",
	}}
	c := NewSemantic(prop, topicEmbedder{}, 1, 85, zap.NewNop())

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "law.pdf", Text: "ignored"}}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)

	assert.Contains(t, resp.Chunks[0].Text, "contract binds")
	assert.Contains(t, resp.Chunks[1].Text, "weather improves")
	for _, ch := range resp.Chunks {
		assert.Equal(t, "law.pdf", ch.Source)
		assert.Positive(t, ch.LenCharacters)
	}
}

func TestSemanticSingleSentenceIsOneChunk(t *testing.T) {
	prop := &fakePropositioner{propositions: []string{"Only one statement here."}}
	c := NewSemantic(prop, topicEmbedder{}, 1, 85, zap.NewNop())

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "s.pdf", Text: "x"}}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "Only one statement here.", resp.Chunks[0].Text)
}

func TestSemanticEmptyPropositionsYieldNoChunks(t *testing.T) {
	prop := &fakePropositioner{propositions: nil}
	c := NewSemantic(prop, topicEmbedder{}, 1, 85, zap.NewNop())

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "e.pdf", Text: "x"}}})
	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
}

func TestSemanticPropositionerErrorPropagates(t *testing.T) {
	prop := &fakePropositioner{err: errors.New("sidecar down")}
	c := NewSemantic(prop, topicEmbedder{}, 1, 85, zap.NewNop())

	_, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "f.pdf", Text: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "f.pdf")
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second here! Third? Fourth without end")
	assert.Equal(t, []string{"First one.", "Second here!", "Third?", "Fourth without end"}, sentences)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 1.0, percentile(nil, 85))
	assert.Equal(t, 3.0, percentile([]float64{3}, 85))
	assert.InDelta(t, 3.4, percentile([]float64{1, 2, 3, 4}, 80), 1e-9)
}

func TestCombineWithBuffer(t *testing.T) {
	windows := combineWithBuffer([]string{"a.", "b.", "c."}, 1)
	assert.Equal(t, []string{"a. b.", "a. b. c.", "b. c."}, windows)
}
