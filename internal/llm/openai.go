package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/JonMunkholm/nlq/internal/config"
)

// OpenAIBackend implements Backend for OpenAI-compatible chat completion APIs.
// The whole prompt is sent as a single user message.
type OpenAIBackend struct {
	client *openai.Client
	cfg    config.OpenAIConfig
}

// NewOpenAIBackend creates a new OpenAI-compatible backend. cfg.BaseURL, when
// set, points the client at a proxy or compatible service.
func NewOpenAIBackend(apiKey string, cfg config.OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Name returns the backend name.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Complete sends prompt to the chat completions endpoint.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, stop ...string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature(b.cfg.Temperature),
		Stop:        mergeStops(nil, stop),
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", unavailable(b.Name(), "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(b.Name(), "chat completion", fmt.Errorf("empty choices array"))
	}
	return cutAtStop(resp.Choices[0].Message.Content, stop), nil
}

// temperature maps 0 to the smallest positive float32, since the client drops
// a zero temperature from the request and the API then applies its default of 1.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
