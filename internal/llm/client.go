// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse is returned when a provider answers without usable text.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrNotConfigured is returned when no provider is configured.
	ErrNotConfigured = errors.New("llm provider not configured")
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends one completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderLocal     Provider = "local"
	ProviderYandex    Provider = "yandex"
	ProviderNone      Provider = "none"
)

// Options selects and configures a provider.
type Options struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string

	YandexOAuthToken string
	YandexFolderID   string
}

// NewClient creates a new LLM client based on provider.
func NewClient(opts Options) (Client, error) {
	switch Provider(strings.ToLower(string(opts.Provider))) {
	case ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model)
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.Model)
	case ProviderLocal:
		return NewLocalClient(opts.BaseURL, opts.APIKey, opts.Model)
	case ProviderYandex:
		return NewYandexClient(opts.YandexOAuthToken, opts.YandexFolderID)
	case ProviderNone, "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
