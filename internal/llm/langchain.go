package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultLocalURL   = "http://localhost:11434/v1/"
	defaultLocalModel = "llama3.1:8b"
)

// LocalClient talks to an OpenAI-compatible endpoint (Ollama, llama.cpp,
// vLLM) through langchaingo.
type LocalClient struct {
	llm   llms.Model
	model string
}

// NewLocalClient creates a client for an OpenAI-compatible endpoint.
func NewLocalClient(baseURL, token, model string) (*LocalClient, error) {
	model = orDefault(model, defaultLocalModel)

	llm, err := lcopenai.New(
		lcopenai.WithToken(orDefault(token, "local")),
		lcopenai.WithBaseURL(orDefault(baseURL, defaultLocalURL)),
		lcopenai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init local llm: %w", err)
	}

	return NewLocalClientWithModel(llm, model), nil
}

// NewLocalClientWithModel wraps an existing langchaingo model.
func NewLocalClientWithModel(llm llms.Model, model string) *LocalClient {
	return &LocalClient{llm: llm, model: model}
}

// Name returns the provider name.
func (c *LocalClient) Name() string {
	return string(ProviderLocal)
}

// Complete sends a completion request.
func (c *LocalClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("local: %w", ErrMalformedResponse)
	}

	return &CompletionResponse{
		Content:    resp.Choices[0].Content,
		Model:      orDefault(req.Model, c.model),
		StopReason: resp.Choices[0].StopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
