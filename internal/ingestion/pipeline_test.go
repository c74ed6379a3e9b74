package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chunking"
	"github.com/saga-labs/lexrag/internal/vectorstore"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeWriter struct {
	points []vectorstore.Point
	err    error
}

func (f *fakeWriter) Upsert(_ context.Context, points []vectorstore.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func newTestPipeline(t *testing.T, ex *fakeExtractor, em *fakeEmbedder, w *fakeWriter) *Pipeline {
	t.Helper()
	reg := chunking.NewRegistry()
	chunker, err := chunking.NewRecursiveOverlap(50, 0)
	require.NoError(t, err)
	reg.Register(chunking.PipelineRecursiveOverlap, chunker)
	return NewPipeline(ex, reg, em, w, zap.NewNop())
}

func TestProcessSuccess(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPipeline(t, &fakeExtractor{text: "Some legal text about contracts.\n\nAnd another clause entirely."}, &fakeEmbedder{}, w)

	res, err := p.Process(context.Background(), "/docs/a.pdf", chunking.PipelineRecursiveOverlap)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Phase)
	assert.Positive(t, res.Chunks)
	assert.Equal(t, res.Chunks, res.Nodes)
	assert.Len(t, w.points, res.Nodes)

	for _, pt := range w.points {
		assert.NotEmpty(t, pt.ID)
		assert.Equal(t, "/docs/a.pdf", pt.Payload["source"])
		assert.NotEmpty(t, pt.Payload["text"])
	}
}

func TestProcessExtractFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{err: errors.New("unreadable")}, &fakeEmbedder{}, &fakeWriter{})

	res, err := p.Process(context.Background(), "/docs/bad.pdf", chunking.PipelineRecursiveOverlap)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, PhaseExtract, res.Phase)
}

func TestProcessEmptyTextFailsInChunkPhase(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "   "}, &fakeEmbedder{}, &fakeWriter{})

	res, err := p.Process(context.Background(), "/docs/empty.pdf", chunking.PipelineRecursiveOverlap)
	require.Error(t, err)
	assert.Equal(t, PhaseChunk, res.Phase)
}

func TestProcessEmbedFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "usable text"}, &fakeEmbedder{err: errors.New("sidecar down")}, &fakeWriter{})

	res, err := p.Process(context.Background(), "/docs/a.pdf", chunking.PipelineRecursiveOverlap)
	require.Error(t, err)
	assert.Equal(t, PhaseEmbed, res.Phase)
	assert.Positive(t, res.Chunks)
}

func TestProcessUpsertFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "usable text"}, &fakeEmbedder{}, &fakeWriter{err: errors.New("qdrant down")})

	res, err := p.Process(context.Background(), "/docs/a.pdf", chunking.PipelineRecursiveOverlap)
	require.Error(t, err)
	assert.Equal(t, PhaseUpsert, res.Phase)
}

func TestProcessUnknownPipelineType(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "text"}, &fakeEmbedder{}, &fakeWriter{})

	res, err := p.Process(context.Background(), "/docs/a.pdf", "bogus")
	require.Error(t, err)
	assert.Equal(t, PhaseChunk, res.Phase)
	assert.Contains(t, err.Error(), "bogus")
}
