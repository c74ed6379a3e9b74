// Package ingestion runs one document through extract, chunk, embed and
// upsert.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chunking"
	"github.com/saga-labs/lexrag/internal/metrics"
	"github.com/saga-labs/lexrag/internal/nodes"
	"github.com/saga-labs/lexrag/internal/vectorstore"
)

// Failure phases reported in Result.Phase.
const (
	PhaseExtract = "extract"
	PhaseChunk   = "chunk"
	PhaseEmbed   = "embed"
	PhaseUpsert  = "upsert"
)

// TextExtractor pulls the full text out of a document file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Embedder produces one vector per text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter persists points into the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, points []vectorstore.Point) error
}

// Result summarizes one document's pass through the pipeline.
type Result struct {
	Source     string        `json:"source"`
	Pipeline   string        `json:"pipeline"`
	Success    bool          `json:"success"`
	Phase      string        `json:"phase,omitempty"` // set on failure
	Error      string        `json:"error,omitempty"`
	Characters int           `json:"characters"`
	Chunks     int           `json:"chunks"`
	Nodes      int           `json:"nodes"`
	Duration   time.Duration `json:"-"`
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	extractor TextExtractor
	chunkers  *chunking.Registry
	embedder  Embedder
	store     VectorWriter
	logger    *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(extractor TextExtractor, chunkers *chunking.Registry, embedder Embedder, store VectorWriter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		chunkers:  chunkers,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// Process ingests a single document. The returned Result always describes
// the outcome; the error is non-nil on failure and Result.Phase names the
// stage that failed.
func (p *Pipeline) Process(ctx context.Context, filePath, pipelineType string) (Result, error) {
	start := time.Now()
	res := Result{Source: filePath, Pipeline: pipelineType}

	fail := func(phase string, err error) (Result, error) {
		res.Phase = phase
		res.Error = err.Error()
		res.Duration = time.Since(start)
		metrics.RecordIngestionMetrics(pipelineType, "error", res.Duration.Seconds(), res.Chunks)
		p.logger.Warn("Document ingestion failed",
			zap.String("source", filePath),
			zap.String("phase", phase),
			zap.Error(err),
		)
		return res, fmt.Errorf("%s %s: %w", phase, filePath, err)
	}

	chunker, err := p.chunkers.Get(pipelineType)
	if err != nil {
		return fail(PhaseChunk, err)
	}

	text, err := p.extractor.Extract(ctx, filePath)
	if err != nil {
		return fail(PhaseExtract, err)
	}
	res.Characters = len(text)

	chunkResp, err := chunker.Chunk(ctx, chunking.Request{Items: []chunking.Item{
		{Source: filePath, Text: text},
	}})
	if err != nil {
		return fail(PhaseChunk, err)
	}
	if len(chunkResp.Chunks) == 0 {
		return fail(PhaseChunk, fmt.Errorf("no chunks produced"))
	}
	res.Chunks = len(chunkResp.Chunks)

	nodeList, _ := nodes.Build(chunkResp.Chunks, map[string]string{filePath: text})
	res.Nodes = len(nodeList)

	texts := make([]string, len(nodeList))
	for i, n := range nodeList {
		texts[i] = n.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(PhaseEmbed, err)
	}
	if len(vectors) != len(nodeList) {
		return fail(PhaseEmbed, fmt.Errorf("got %d vectors for %d nodes", len(vectors), len(nodeList)))
	}

	points := make([]vectorstore.Point, len(nodeList))
	for i, n := range nodeList {
		points[i] = vectorstore.Point{
			ID:      n.ID.String(),
			Vector:  vectors[i],
			Payload: n.Payload(),
		}
	}
	if err := p.store.Upsert(ctx, points); err != nil {
		return fail(PhaseUpsert, err)
	}

	res.Success = true
	res.Duration = time.Since(start)
	metrics.RecordIngestionMetrics(pipelineType, "ok", res.Duration.Seconds(), res.Chunks)

	p.logger.Info("Document ingested",
		zap.String("source", filePath),
		zap.String("pipeline", pipelineType),
		zap.Int("chunks", res.Chunks),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
