// Package llm wraps the OpenAI chat completions API for the query enhancer,
// reranker, question generator and chat synthesis.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/metrics"
)

// Config holds LLM client configuration
type Config struct {
	APIKey string
	Model  string
}

// Client is a thin wrapper around the OpenAI client
type Client struct {
	oai    openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates an LLM client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		oai:    openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		logger: logger,
	}
}

// Model returns the configured model name
func (c *Client) Model() string { return c.model }

// Complete runs a chat completion and returns the raw text. operation labels
// the call in metrics and logs.
func (c *Client) Complete(ctx context.Context, operation, system, user string, temperature float64) (string, error) {
	return c.complete(ctx, operation, system, user, temperature, false)
}

// CompleteJSON runs a chat completion in JSON mode and unmarshals the result
// into out.
func (c *Client) CompleteJSON(ctx context.Context, operation, system, user string, temperature float64, out any) error {
	content, err := c.complete(ctx, operation, system, user, temperature, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parse %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, operation, system, user string, temperature float64, jsonMode bool) (string, error) {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: param.NewOpt(temperature),
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.oai.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.RecordLLMMetrics(operation, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("%s completion: %w", operation, err)
	}
	if len(resp.Choices) == 0 {
		metrics.RecordLLMMetrics(operation, "empty", time.Since(start).Seconds())
		return "", fmt.Errorf("%s completion: no choices returned", operation)
	}

	metrics.RecordLLMMetrics(operation, "ok", time.Since(start).Seconds())
	c.logger.Debug("LLM completion",
		zap.String("operation", operation),
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}
