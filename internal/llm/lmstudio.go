package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// LMStudio talks to an OpenAI-compatible chat completions server such as
// LM Studio or llama.cpp's server.
type LMStudio struct {
	client  *http.Client
	baseURL string
	model   string
	opts    CompleteOptions
	logger  *slog.Logger
}

// Option configures an LMStudio transport.
type Option func(*LMStudio)

// WithEndpoint sets the base URL, e.g. http://localhost:1234.
func WithEndpoint(endpoint string) Option {
	return func(c *LMStudio) {
		c.baseURL = strings.TrimRight(endpoint, "/")
	}
}

// WithModel pins the model; empty uses whatever is loaded.
func WithModel(model string) Option {
	return func(c *LMStudio) {
		c.model = model
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *LMStudio) {
		c.client = client
	}
}

// WithCompleteOptions overrides sampling options.
func WithCompleteOptions(opts CompleteOptions) Option {
	return func(c *LMStudio) {
		c.opts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *LMStudio) {
		c.logger = logger
	}
}

// NewLMStudio creates a new LM Studio transport.
func NewLMStudio(opts ...Option) *LMStudio {
	c := &LMStudio{
		baseURL: "http://localhost:1234",
		model:   "", // Will use whatever model is loaded
		client:  &http.Client{},
		opts:    DefaultCompleteOptions(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompleteOptions contains options for completion requests.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
	ContextSize int // n_ctx for LM Studio
}

// DefaultCompleteOptions returns default options.
func DefaultCompleteOptions() CompleteOptions {
	return CompleteOptions{
		Temperature: 0.2,
		MaxTokens:   -1,
		ContextSize: 0, // 0 means use model default
	}
}

// Submit sends the prompt and returns the assistant's reply.
func (c *LMStudio) Submit(ctx context.Context, docID string, prompt Prompt) (string, error) {
	c.logger.Debug("submitting annotation request", "doc", docID, "endpoint", c.baseURL, "model", c.model)
	return c.Complete(ctx, prompt.Messages())
}

// Complete sends messages and returns the full response.
func (c *LMStudio) Complete(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]interface{}{
		"messages":    messages,
		"temperature": c.opts.Temperature,
		"max_tokens":  c.opts.MaxTokens,
		"stream":      false,
	}

	if c.model != "" {
		payload["model"] = c.model
	}

	// LM Studio uses n_ctx
	if c.opts.ContextSize > 0 {
		payload["n_ctx"] = c.opts.ContextSize
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: status %d, failed to read body: %v", ErrTransport, resp.StatusCode, err)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: no choices in response", ErrTransport)
}

// Model represents an available model on the server.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// HealthCheck checks if the server is running.
func (c *LMStudio) HealthCheck(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}

// Models returns the list of available models.
func (c *LMStudio) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: server not reachable: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: models returned status %d", ErrTransport, resp.StatusCode)
	}

	var modelsResp struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode models response: %v", ErrTransport, err)
	}

	return modelsResp.Data, nil
}
