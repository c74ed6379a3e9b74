// Package retrieval implements multi-query vector search with optional LLM
// query enhancement and reranking.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/metrics"
	"github.com/saga-labs/lexrag/internal/vectorstore"
)

// maxQueryVariants bounds how many queries one retrieval issues.
const maxQueryVariants = 3

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search against the vector store.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.ScoredChunk, error)
}

// Metadata records which LLM stages shaped a result.
type Metadata struct {
	Enhanced bool `json:"enhanced"`
	Reranked bool `json:"reranked"`
}

// Result is one retrieved chunk. Score is nil when reranking reordered the
// results or when enhancement made per-query scores incomparable.
type Result struct {
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Score    *float64 `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Engine coordinates enhancement, search fan-out, dedup and reranking.
type Engine struct {
	embedder Embedder
	searcher Searcher
	enhancer *QueryEnhancer
	reranker *Reranker
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine. enhancer and reranker may be nil;
// the corresponding flags then degrade to the plain path.
func NewEngine(embedder Embedder, searcher Searcher, enhancer *QueryEnhancer, reranker *Reranker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		enhancer: enhancer,
		reranker: reranker,
		logger:   logger,
	}
}

// Retrieve returns up to topK chunks relevant to question. Individual query
// failures are logged and skipped; an empty pool yields an empty list.
func (e *Engine) Retrieve(ctx context.Context, question string, topK int, useEnhancer, useReranking bool) ([]Result, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty query")
	}
	if topK <= 0 {
		topK = 5
	}

	queries := []string{question}
	if useEnhancer && e.enhancer != nil {
		queries = e.enhancer.Enhance(ctx, question, maxQueryVariants)
	}

	perQueryK := perQueryLimit(topK, len(queries), useReranking)
	pool := e.searchAll(ctx, queries, perQueryK)

	results := e.finalize(ctx, question, pool, topK, useEnhancer && len(queries) > 1, useReranking)

	metrics.RecordRetrievalMetrics("ok", time.Since(start).Seconds())
	e.logger.Debug("Retrieval completed",
		zap.Int("queries", len(queries)),
		zap.Int("pool", len(pool)),
		zap.Int("returned", len(results)),
		zap.Bool("enhanced", useEnhancer),
		zap.Bool("reranked", useReranking),
	)
	return results, nil
}

// perQueryLimit spreads topK over the query variants. Reranking gets a
// wider candidate pool to choose from.
func perQueryLimit(topK, numQueries int, reranking bool) int {
	if numQueries < 1 {
		numQueries = 1
	}
	if reranking {
		k := topK / numQueries * 2
		if k < 4 {
			k = 4
		}
		return k
	}
	k := topK / numQueries
	if k < 2 {
		k = 2
	}
	return k
}

func (e *Engine) searchAll(ctx context.Context, queries []string, perQueryK int) []vectorstore.ScoredChunk {
	var pool []vectorstore.ScoredChunk
	seen := make(map[string]bool)

	for _, query := range queries {
		vector, err := e.embedder.Embed(ctx, query)
		if err != nil {
			e.logger.Warn("Query embedding failed, skipping variant", zap.String("query", query), zap.Error(err))
			continue
		}
		chunks, err := e.searcher.Search(ctx, vector, perQueryK)
		if err != nil {
			e.logger.Warn("Vector search failed, skipping variant", zap.String("query", query), zap.Error(err))
			continue
		}
		// First occurrence of a chunk text wins.
		for _, chunk := range chunks {
			if seen[chunk.Text] {
				continue
			}
			seen[chunk.Text] = true
			pool = append(pool, chunk)
		}
	}
	return pool
}

func (e *Engine) finalize(ctx context.Context, question string, pool []vectorstore.ScoredChunk, topK int, enhanced, useReranking bool) []Result {
	if len(pool) == 0 {
		return []Result{}
	}

	if useReranking && e.reranker != nil {
		docs := make([]Document, len(pool))
		for i, chunk := range pool {
			docs[i] = Document{Text: chunk.Text, Source: chunk.Source}
		}
		ranked := e.reranker.Rerank(ctx, question, docs, topK)

		out := make([]Result, len(ranked))
		for i, doc := range ranked {
			out[i] = Result{
				Text:     doc.Text,
				Source:   doc.Source,
				Metadata: Metadata{Enhanced: enhanced, Reranked: true},
			}
		}
		return out
	}

	if len(pool) > topK {
		pool = pool[:topK]
	}
	out := make([]Result, len(pool))
	for i, chunk := range pool {
		res := Result{
			Text:     chunk.Text,
			Source:   chunk.Source,
			Metadata: Metadata{Enhanced: enhanced},
		}
		if !enhanced {
			// Scores from different query variants are not comparable.
			score := chunk.Score
			res.Score = &score
		}
		out[i] = res
	}
	return out
}
