// Package extract holds clients for the document-processing sidecars: the
// PDF text extractor and the propositioner.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/circuitbreaker"
)

// ErrNoContent is returned when a document yields no extractable text.
var ErrNoContent = errors.New("document contains no extractable text")

// Client extracts text from PDF files via the extractor sidecar
type Client struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewClient creates an extractor client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    circuitbreaker.NewHTTPWrapper(httpClient, "extractor", "extract", logger),
		logger:  logger,
	}
}

type extractRequest struct {
	Path string `json:"path"`
}

type extractResponse struct {
	Pages []struct {
		Text string `json:"text"`
	} `json:"pages"`
}

// Extract returns the full text of the PDF at path, pages joined by
// newlines. Returns ErrNoContent when the document has no usable text.
func (c *Client) Extract(ctx context.Context, path string) (string, error) {
	payload, _ := json.Marshal(extractRequest{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("extractor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("extractor returned %d: %s", resp.StatusCode, string(body))
	}

	var er extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return "", fmt.Errorf("decode extractor response: %w", err)
	}

	parts := make([]string, 0, len(er.Pages))
	for _, page := range er.Pages {
		parts = append(parts, page.Text)
	}
	text := strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// PropositionClient rewrites text into atomic statements via the
// propositioner sidecar
type PropositionClient struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewPropositionClient creates a propositioner client
func NewPropositionClient(baseURL string, timeout time.Duration, logger *zap.Logger) *PropositionClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: timeout}
	return &PropositionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    circuitbreaker.NewHTTPWrapper(httpClient, "propositioner", "extract", logger),
		logger:  logger,
	}
}

type propositionRequest struct {
	Text string `json:"text"`
}

type propositionResponse struct {
	Propositions []string `json:"propositions"`
}

// Propositions returns the atomic statements for text
func (c *PropositionClient) Propositions(ctx context.Context, text string) ([]string, error) {
	payload, _ := json.Marshal(propositionRequest{Text: text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/propositions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("propositioner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("propositioner returned %d: %s", resp.StatusCode, string(body))
	}

	var pr propositionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode propositioner response: %w", err)
	}
	return pr.Propositions, nil
}
