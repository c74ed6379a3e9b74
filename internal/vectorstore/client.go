// Package vectorstore is a minimal Qdrant HTTP client scoped to a single
// collection of document chunks.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/metrics"
)

// Config holds Qdrant connection settings
type Config struct {
	Host       string
	Port       int
	Collection string
	Timeout    time.Duration
}

// Point is a chunk vector plus its payload, ready for upsert
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredChunk is one search hit
type ScoredChunk struct {
	ID      string
	Score   float64
	Text    string
	Source  string
	Payload map[string]interface{}
}

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a Qdrant client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectorstore", logger),
		log:   logger,
	}
}

// Collection returns the configured collection name
func (c *Client) Collection() string { return c.cfg.Collection }

func (c *Client) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpw.Do(req)
}

// EnsureCollection creates the collection with cosine distance and the given
// vector dimension if it does not already exist. Idempotent.
func (c *Client) EnsureCollection(ctx context.Context, dimensions int) error {
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant collection check status %d", resp.StatusCode)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	resp, err = c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant create collection status %d", resp.StatusCode)
	}

	c.log.Info("Created vector collection",
		zap.String("collection", c.cfg.Collection),
		zap.Int("dimensions", dimensions),
	)
	return nil
}

// Upsert inserts or updates points in the collection
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.base, c.cfg.Collection)

	resp, err := c.do(ctx, http.MethodPut, url, map[string]interface{}{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}

	metrics.VectorPointsUpserted.WithLabelValues(c.cfg.Collection).Add(float64(len(points)))
	return nil
}

// qdrant search request/response (simplified)
type qdrantQueryRequest struct {
	Query       []float32 `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

// qdrantQueryResponse for the /points/query endpoint which has nested structure
type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search returns the topK nearest chunks, highest score first.
// Prefers the modern /points/query endpoint and falls back to /points/search
// for older Qdrant versions.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error) {
	start := time.Now()
	collection := c.cfg.Collection

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	resp, err := c.do(ctx, http.MethodPost, urlQuery, qdrantQueryRequest{Query: vector, Limit: topK, WithPayload: true})
	if err != nil {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	defer resp.Body.Close()

	var points []qdrantPoint
	if resp.StatusCode != http.StatusOK {
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		legacy := map[string]interface{}{"vector": vector, "limit": topK, "with_payload": true}
		resp2, err2 := c.do(ctx, http.MethodPost, urlSearch, legacy)
		if err2 != nil {
			metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var sr qdrantSearchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		points = sr.Result
	} else {
		var qr qdrantQueryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		points = qr.Result.Points
	}

	metrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())

	out := make([]ScoredChunk, 0, len(points))
	for _, p := range points {
		chunk := ScoredChunk{
			Score:   p.Score,
			Payload: p.Payload,
		}
		if id, ok := p.ID.(string); ok {
			chunk.ID = id
		} else if p.ID != nil {
			chunk.ID = fmt.Sprintf("%v", p.ID)
		}
		if text, ok := p.Payload["text"].(string); ok {
			chunk.Text = text
		}
		if source, ok := p.Payload["source"].(string); ok {
			chunk.Source = source
		}
		out = append(out, chunk)
	}
	return out, nil
}

type qdrantCountResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// Count returns the exact number of points in the collection
func (c *Client) Count(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/collections/%s/points/count", c.base, c.cfg.Collection)

	resp, err := c.do(ctx, http.MethodPost, url, map[string]interface{}{"exact": true})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("qdrant count status %d", resp.StatusCode)
	}

	var cr qdrantCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return 0, err
	}
	return cr.Result.Count, nil
}
