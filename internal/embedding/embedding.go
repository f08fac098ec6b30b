// Package embedding selects the embedding model used to rank exemplars.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"github.com/philippgille/chromem-go"

	"github.com/JonMunkholm/nlq/internal/config"
)

const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderHash    = "hash"
)

// Options carries what the selected provider needs beyond configuration.
type Options struct {
	// APIKey is required by the openai provider.
	APIKey string
}

// New returns the embedding function for the configured provider.
func New(ctx context.Context, cfg config.Config, opts Options) (chromem.EmbeddingFunc, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Embeddings.Provider))
	switch provider {
	case "", ProviderOllama:
		return chromem.NewEmbeddingFuncOllama(OllamaModel(cfg.Embeddings.Model), cfg.Embeddings.OllamaBaseURL), nil
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an api key")
		}
		model := cfg.Embeddings.Model
		if model == "" || strings.Contains(model, "MiniLM") || model == "all-minilm" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		return chromem.NewEmbeddingFuncOpenAI(opts.APIKey, chromem.EmbeddingModelOpenAI(model)), nil
	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model := cfg.Embeddings.Model
		if !strings.HasPrefix(model, "amazon.titan-embed") {
			model = DefaultTitanModel
		}
		return NewBedrockFunc(bedrockruntime.NewFromConfig(awsCfg), model), nil
	case ProviderHash:
		return NewHashFunc(cfg.Embeddings.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (supported: ollama, openai, bedrock, hash)", provider)
	}
}

// OllamaModel maps the sentence-transformers model name onto the Ollama library
// name of the same weights.
func OllamaModel(name string) string {
	switch strings.TrimSpace(name) {
	case "", "sentence-transformers/all-MiniLM-L6-v2", "all-MiniLM-L6-v2":
		return "all-minilm"
	default:
		return name
	}
}

const DefaultTitanModel = "amazon.titan-embed-text-v1"

type invokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockFunc embeds text with an Amazon Titan embeddings model.
func NewBedrockFunc(client invokeModelAPI, modelID string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		body, err := json.Marshal(map[string]string{"inputText": text})
		if err != nil {
			return nil, fmt.Errorf("marshal titan request: %w", err)
		}
		out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("invoke %s: %w", modelID, err)
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(out.Body, &parsed); err != nil {
			return nil, fmt.Errorf("decode titan response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, fmt.Errorf("titan returned an empty embedding")
		}
		return parsed.Embedding, nil
	}
}
