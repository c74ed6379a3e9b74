// Package embeddings talks to the embedding sidecar and caches vectors in a
// local LRU backed by Redis.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/metrics"
)

// charsPerToken approximates how many characters fit in one embedder token.
const charsPerToken = 3.5

// Config holds embedding service configuration
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	MaxTokens  int
	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxLRU     int
}

// Service provides embedding generation with caching
type Service struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	cache  Cache
	lru    *LocalLRU
	logger *zap.Logger
}

// NewService creates an embedding service. cache may be nil to run with the
// in-process LRU only.
func NewService(cfg Config, cache Cache, logger *zap.Logger) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "multilingual-e5-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 2048
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Service{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(httpClient, "embedder", "embeddings", logger),
		cache:  cache,
		lru:    NewLocalLRU(cfg.MaxLRU),
		logger: logger,
	}
}

// Model returns the configured model name
func (s *Service) Model() string { return s.cfg.Model }

// Dimensions returns the vector dimension produced by the model
func (s *Service) Dimensions() int { return s.cfg.Dimensions }

// MaxCharacters returns the chunk size budget implied by the model's token
// limit.
func (s *Service) MaxCharacters() int {
	return int(float64(s.cfg.MaxTokens) * charsPerToken)
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, serving from the LRU and
// Redis caches where possible and calling the sidecar once for the rest.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	m := s.cfg.Model
	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIndices []int

	for i, text := range texts {
		key := MakeKey(m, text)

		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.EmbeddingCacheHits.Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, 30*time.Minute)
				metrics.EmbeddingCacheHits.Inc()
				continue
			}
		}

		metrics.EmbeddingCacheMisses.Inc()
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()

	url := fmt.Sprintf("%s/embeddings/", s.cfg.BaseURL)
	payload := embedRequest{Texts: uncachedTexts, Model: m}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		metrics.RecordEmbeddingMetrics(m, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	if len(er.Embeddings) != len(uncachedTexts) {
		return nil, fmt.Errorf("embedding service returned %d embeddings for %d texts", len(er.Embeddings), len(uncachedTexts))
	}

	for i, embedding := range er.Embeddings {
		out := make([]float32, len(embedding))
		for j, f := range embedding {
			out[j] = float32(f)
		}

		results[uncachedIndices[i]] = out

		key := MakeKey(m, uncachedTexts[i])
		s.lru.Set(ctx, key, out, 30*time.Minute)
		if s.cache != nil {
			s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
		}
	}

	metrics.RecordEmbeddingMetrics(m, "ok", time.Since(start).Seconds())
	return results, nil
}
