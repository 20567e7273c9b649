package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/billie-coop/margin/internal/config"
)

// ErrTransport marks a failed annotation request: network or process
// failure, a non-200 status, or an expired context.
var ErrTransport = errors.New("transport error")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transport submits a prompt for one document and returns the raw body.
type Transport interface {
	Submit(ctx context.Context, docID string, prompt Prompt) (string, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, docID string, prompt Prompt) (string, error)

// Submit calls f.
func (f TransportFunc) Submit(ctx context.Context, docID string, prompt Prompt) (string, error) {
	return f(ctx, docID, prompt)
}

// HealthChecker is implemented by transports that can tell whether their
// backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckHealth reports whether t's backend is reachable. Transports that
// cannot tell report nil.
func CheckHealth(ctx context.Context, t Transport) error {
	if hc, ok := t.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// NewTransport builds the transport selected by cfg, rate limited when
// requests_per_minute is set. cfg must already be valid.
func NewTransport(cfg *config.Config, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var t Transport
	switch cfg.Provider {
	case config.ProviderLMStudio:
		client := NewLMStudio(WithEndpoint(cfg.Endpoint), WithModel(cfg.Model), WithLogger(logger))
		t = client
	case config.ProviderOpenAI:
		opts := []OpenAIOption{WithOpenAIModel(cfg.Model), WithOpenAILogger(logger)}
		if cfg.Endpoint != "" && cfg.Endpoint != config.DefaultConfig().Endpoint {
			opts = append(opts, WithBaseURL(cfg.Endpoint))
		}
		t = NewOpenAI(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrConfig, cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		t = NewRateLimited(t, cfg.RequestsPerMinute)
	}
	return t, nil
}
