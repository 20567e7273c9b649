package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAI submits prompts through the OpenAI chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	baseURL string
	logger  *slog.Logger
}

// OpenAIOption configures an OpenAI transport.
type OpenAIOption func(*OpenAI)

// WithOpenAIModel selects the model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) {
		o.baseURL = url
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = logger
	}
}

// NewOpenAI creates an OpenAI transport.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		model:  DefaultOpenAIModel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	o.client = openai.NewClientWithConfig(cfg)
	return o
}

// Submit sends the prompt and returns the first choice's content.
func (o *OpenAI) Submit(ctx context.Context, docID string, prompt Prompt) (string, error) {
	msgs := prompt.Messages()
	reqMsgs := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == "system" {
			role = openai.ChatMessageRoleSystem
		}
		reqMsgs = append(reqMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    reqMsgs,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	o.logger.Debug("submitting annotation request", "doc", docID, "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Warn("openai request failed", "doc", docID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrTransport)
	}

	return resp.Choices[0].Message.Content, nil
}
