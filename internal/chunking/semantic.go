package chunking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Propositioner rewrites document text into atomic statements.
type Propositioner interface {
	Propositions(ctx context.Context, text string) ([]string, error)
}

// Embedder produces one vector per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Semantic chunks text by propositioning it, grouping sentences into sliding
// windows, embedding the windows and cutting wherever the cosine distance
// between adjacent windows exceeds a percentile threshold.
type Semantic struct {
	propositioner        Propositioner
	embedder             Embedder
	bufferSize           int
	breakpointPercentile float64
	logger               *zap.Logger
}

// NewSemantic creates a semantic chunker. bufferSize is the number of
// neighbouring sentences included on each side of a window;
// breakpointPercentile selects the distance threshold (0-100).
func NewSemantic(propositioner Propositioner, embedder Embedder, bufferSize int, breakpointPercentile float64, logger *zap.Logger) *Semantic {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if breakpointPercentile <= 0 {
		breakpointPercentile = 85
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{
		propositioner:        propositioner,
		embedder:             embedder,
		bufferSize:           bufferSize,
		breakpointPercentile: breakpointPercentile,
		logger:               logger,
	}
}

func (c *Semantic) Name() string { return "semantic_chunker" }

func (c *Semantic) Chunk(ctx context.Context, req Request) (Response, error) {
	var all []Chunk
	for _, item := range req.Items {
		chunks, err := c.chunkItem(ctx, item)
		if err != nil {
			return Response{}, fmt.Errorf("semantic chunking %s: %w", item.Source, err)
		}
		all = append(all, chunks...)
	}
	return Response{Chunks: all}, nil
}

func (c *Semantic) chunkItem(ctx context.Context, item Item) ([]Chunk, error) {
	propositions, err := c.propositioner.Propositions(ctx, item.Text)
	if err != nil {
		return nil, fmt.Errorf("propositioner: %w", err)
	}

	text := strings.Join(propositions, " ")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		out := text
		if len(sentences) == 1 {
			out = sentences[0]
		}
		return []Chunk{{Source: item.Source, Text: out, LenCharacters: utf8.RuneCountInString(out)}}, nil
	}

	windows := combineWithBuffer(sentences, c.bufferSize)
	vectors, err := c.embedder.EmbedBatch(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embed windows: %w", err)
	}
	if len(vectors) != len(windows) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d windows", len(vectors), len(windows))
	}

	distances := adjacentCosineDistances(vectors)
	threshold := percentile(distances, c.breakpointPercentile)

	var breakIndices []int
	for i, d := range distances {
		if d > threshold {
			breakIndices = append(breakIndices, i)
		}
	}

	c.logger.Debug("Semantic breakpoints computed",
		zap.String("source", item.Source),
		zap.Int("sentences", len(sentences)),
		zap.Int("breakpoints", len(breakIndices)),
		zap.Float64("threshold", threshold),
	)

	var chunks []Chunk
	for _, segment := range sliceByBreakpoints(sentences, breakIndices) {
		chunks = append(chunks, Chunk{
			Source:        item.Source,
			Text:          segment,
			LenCharacters: utf8.RuneCountInString(segment),
		})
	}
	return chunks, nil
}

// splitSentences breaks text after '.', '?' or '!' followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		if (r == '.' || r == '?' || r == '!') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// combineWithBuffer builds one window per sentence: the sentence plus up to
// bufferSize neighbours on each side, joined by spaces.
func combineWithBuffer(sentences []string, bufferSize int) []string {
	windows := make([]string, len(sentences))
	for i := range sentences {
		start := i - bufferSize
		if start < 0 {
			start = 0
		}
		end := i + bufferSize + 1
		if end > len(sentences) {
			end = len(sentences)
		}
		windows[i] = strings.Join(sentences[start:end], " ")
	}
	return windows
}

func adjacentCosineDistances(vectors [][]float32) []float64 {
	if len(vectors) < 2 {
		return nil
	}
	distances := make([]float64, 0, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		distances = append(distances, 1.0-cosineSimilarity(vectors[i], vectors[i+1]))
	}
	return distances
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 1.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q := p / 100.0
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// sliceByBreakpoints joins sentence runs delimited by the breakpoint
// indices. A breakpoint at i cuts after sentence i+1.
func sliceByBreakpoints(sentences []string, breakIndices []int) []string {
	var segments []string
	start := 0
	for _, idx := range breakIndices {
		end := idx + 1
		if end >= len(sentences) {
			end = len(sentences) - 1
		}
		segments = append(segments, strings.Join(sentences[start:end+1], " "))
		start = end + 1
	}
	if start < len(sentences) {
		segments = append(segments, strings.Join(sentences[start:], " "))
	}
	return segments
}
