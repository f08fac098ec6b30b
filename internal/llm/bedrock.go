package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/nlq/internal/config"
)

type bedrockRuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockBackend invokes a foundation model on Amazon Bedrock. The request body
// is encoded for the model's provider family, taken from the model id.
type BedrockBackend struct {
	client bedrockRuntimeAPI
	cfg    config.BedrockConfig
}

// NewBedrockBackend creates a Bedrock backend for cfg.ModelID.
func NewBedrockBackend(client bedrockRuntimeAPI, cfg config.BedrockConfig) *BedrockBackend {
	return &BedrockBackend{client: client, cfg: cfg}
}

// Name returns the backend name.
func (b *BedrockBackend) Name() string {
	return "bedrock"
}

type bedrockParams struct {
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
	Stop        []string
}

type bedrockAdapter struct {
	encode func(prompt string, p bedrockParams) ([]byte, error)
	decode func(body []byte) (string, error)
}

var bedrockAdapters = map[string]bedrockAdapter{
	"anthropic": {encode: encodeAnthropic, decode: decodeAnthropic},
	"amazon":    {encode: encodeTitan, decode: decodeTitan},
	"ai21":      {encode: encodeAI21, decode: decodeAI21},
	"cohere":    {encode: encodeCohere, decode: decodeCohere},
}

// Complete sends prompt to the configured model and returns its completion.
func (b *BedrockBackend) Complete(ctx context.Context, prompt string, stop ...string) (string, error) {
	family := modelProvider(b.cfg.ModelID)
	adapter, ok := bedrockAdapters[family]
	if !ok {
		return "", unavailable(b.Name(), fmt.Sprintf("unsupported model provider %q", family), nil)
	}

	stops := mergeStops(b.cfg.StopSequences, stop)
	body, err := adapter.encode(prompt, bedrockParams{
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
		TopK:        b.cfg.TopK,
		TopP:        b.cfg.TopP,
		Stop:        stops,
	})
	if err != nil {
		return "", unavailable(b.Name(), "encode request", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.cfg.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", unavailable(b.Name(), "invoke "+b.cfg.ModelID, err)
	}

	text, err := adapter.decode(out.Body)
	if err != nil {
		return "", unavailable(b.Name(), "decode response", err)
	}
	return cutAtStop(text, stops), nil
}

// modelProvider returns the provider segment of a model id, skipping a
// cross-region inference prefix such as "us.".
func modelProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) > 2 {
		switch parts[0] {
		case "us", "eu", "apac", "global":
			return parts[1]
		}
	}
	return parts[0]
}

type titanRequest struct {
	InputText            string                `json:"inputText"`
	TextGenerationConfig titanGenerationConfig `json:"textGenerationConfig"`
}

type titanGenerationConfig struct {
	MaxTokenCount int      `json:"maxTokenCount"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

func encodeTitan(prompt string, p bedrockParams) ([]byte, error) {
	return json.Marshal(titanRequest{
		InputText: prompt,
		TextGenerationConfig: titanGenerationConfig{
			MaxTokenCount: p.MaxTokens,
			Temperature:   p.Temperature,
			TopP:          p.TopP,
			StopSequences: p.Stop,
		},
	})
}

func decodeTitan(body []byte) (string, error) {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode titan response: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("titan response has no results")
	}
	return resp.Results[0].OutputText, nil
}

func encodeAI21(prompt string, p bedrockParams) ([]byte, error) {
	return json.Marshal(map[string]any{
		"prompt":        prompt,
		"maxTokens":     p.MaxTokens,
		"temperature":   p.Temperature,
		"topP":          p.TopP,
		"stopSequences": p.Stop,
	})
}

func decodeAI21(body []byte) (string, error) {
	var resp struct {
		Completions []struct {
			Data struct {
				Text string `json:"text"`
			} `json:"data"`
		} `json:"completions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode ai21 response: %w", err)
	}
	if len(resp.Completions) == 0 {
		return "", fmt.Errorf("ai21 response has no completions")
	}
	return resp.Completions[0].Data.Text, nil
}

func encodeCohere(prompt string, p bedrockParams) ([]byte, error) {
	return json.Marshal(map[string]any{
		"prompt":         prompt,
		"max_tokens":     p.MaxTokens,
		"temperature":    p.Temperature,
		"p":              p.TopP,
		"k":              p.TopK,
		"stop_sequences": p.Stop,
	})
}

func decodeCohere(body []byte) (string, error) {
	var resp struct {
		Generations []struct {
			Text string `json:"text"`
		} `json:"generations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode cohere response: %w", err)
	}
	if len(resp.Generations) == 0 {
		return "", fmt.Errorf("cohere response has no generations")
	}
	return resp.Generations[0].Text, nil
}
