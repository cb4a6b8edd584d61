// Package gateway produces assistant replies from an LLM provider and falls
// back to a keyword table when the provider cannot answer.
package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/healthassist/internal/llm"
	"github.com/capitalize-ai/healthassist/pkg/logger"
	"github.com/capitalize-ai/healthassist/pkg/metrics"
)

// SystemPrompt is the HealthAssist persona sent ahead of every user message.
const SystemPrompt = `You are HealthAssist AI, a helpful healthcare assistant.
Provide accurate, educational information about health topics.
Always clarify that you're not providing medical advice and users should consult healthcare professionals for diagnosis and treatment.
If asked about non-health topics, gently redirect to health-related information.
Keep responses concise, informative, and conversational.`

// Fallback reasons.
const (
	ReasonNotConfigured = "not_configured"
	ReasonUnavailable   = "unavailable"
	ReasonTimeout       = "timeout"
	ReasonMalformed     = "malformed"
)

// Config holds generation parameters.
type Config struct {
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// DefaultConfig returns the stock HealthAssist parameters.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: SystemPrompt,
		Temperature:  0.7,
		MaxTokens:    500,
		Timeout:      30 * time.Second,
	}
}

// Gateway wraps one provider call with a bounded timeout and an offline fallback.
type Gateway struct {
	client   llm.Client
	fallback *Fallback
	cfg      Config
	log      *logger.Logger
}

// New creates a gateway. A nil client always serves the fallback.
func New(client llm.Client, fallback *Fallback, cfg Config, log *logger.Logger) *Gateway {
	if fallback == nil {
		fallback = DefaultFallback()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Gateway{
		client:   client,
		fallback: fallback,
		cfg:      cfg,
		log:      logger.OrGlobal(log),
	}
}

// GenerateReply returns the provider's answer to text, or a fallback reply.
// It makes at most one provider call and never fails.
func (g *Gateway) GenerateReply(ctx context.Context, text string) string {
	if g.client == nil {
		return g.useFallback(text, ReasonNotConfigured, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      g.cfg.SystemPrompt,
		Messages:    []llm.ChatMessage{{Role: "user", Content: text}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	duration := time.Since(start).Seconds()

	if err == nil && (resp == nil || resp.Content == "") {
		err = llm.ErrMalformedResponse
	}
	if err != nil {
		reason := classify(ctx, err)
		metrics.RecordLLMRequest(g.client.Name(), reason, duration, 0, 0)
		return g.useFallback(text, reason, err)
	}

	metrics.RecordLLMRequest(g.client.Name(), "ok", duration, resp.TokensIn, resp.TokensOut)
	g.log.Debug("llm reply generated",
		zap.String("provider", g.client.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return resp.Content
}

func (g *Gateway) useFallback(text, reason string, err error) string {
	metrics.RecordFallback(reason)

	reply, topic := g.fallback.Reply(text)
	fields := []zap.Field{zap.String("reason", reason), zap.String("topic", topic)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	g.log.Warn("serving fallback reply", fields...)
	return reply
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, llm.ErrMalformedResponse):
		return ReasonMalformed
	default:
		return ReasonUnavailable
	}
}
