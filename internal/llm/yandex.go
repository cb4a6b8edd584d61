package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// IAM tokens live for at most 12 hours; Yandex recommends renewing hourly.
const iamTokenTTL = time.Hour

// iamTokenSource caches an IAM token and reissues it once it is older than ttl.
type iamTokenSource struct {
	issue func() (string, error)
	now   func() time.Time
	ttl   time.Duration

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

func (s *iamTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Sub(s.issuedAt) < s.ttl {
		return s.token, nil
	}

	token, err := s.issue()
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	s.token, s.issuedAt = token, s.now()
	return token, nil
}

// invalidate forces the next Token call to reissue.
func (s *iamTokenSource) invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// YandexClient is the Yandex GPT client.
type YandexClient struct {
	ya     yagpt.YaGPTFace
	tokens *iamTokenSource
}

// NewYandexClient binds the client to a folder and issues the first IAM
// token from the OAuth token. Later tokens are reissued as they age out.
func NewYandexClient(oauthToken, folderID string) (*YandexClient, error) {
	if oauthToken == "" || folderID == "" {
		return nil, fmt.Errorf("yandex oauth token and folder id are required")
	}

	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	tokens := &iamTokenSource{
		issue: func() (string, error) {
			resp, err := iam.Create()
			if err != nil {
				return "", err
			}
			return resp.IamToken, nil
		},
		now: time.Now,
		ttl: iamTokenTTL,
	}
	if _, err := tokens.Token(); err != nil {
		return nil, err
	}

	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{ya: ya, tokens: tokens}, nil
}

// Name returns the provider name.
func (c *YandexClient) Name() string {
	return string(ProviderYandex)
}

// Complete sends a completion request. Generation parameters are fixed by the
// folder's model configuration.
func (c *YandexClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var messages []yagpt.Message
	if req.System != "" {
		messages = append(messages, yagpt.Message{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, yagpt.Message{Role: msg.Role, Content: msg.Content})
	}

	iamToken, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	resp, err := c.ya.CompletionWithCtx(ctx, iamToken, messages)
	if err != nil {
		// The token may have been revoked early; the next turn reissues it.
		c.tokens.invalidate()
		return nil, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 || resp.Alternatives[0].Message.Content == "" {
		return nil, fmt.Errorf("yagpt: %w", ErrMalformedResponse)
	}

	return &CompletionResponse{
		Content:   resp.Alternatives[0].Message.Content,
		Model:     yagpt.YaModelLite,
		TokensIn:  int(resp.Usage.InputTextTokens),
		TokensOut: int(resp.Usage.CompletionTokens),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
