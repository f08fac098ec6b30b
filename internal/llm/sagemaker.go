package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/nlq/internal/config"
)

type sageMakerRuntimeAPI interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// SageMakerBackend calls a self-hosted text generation model behind a SageMaker
// inference endpoint.
type SageMakerBackend struct {
	client sageMakerRuntimeAPI
	cfg    config.SageMakerConfig
}

func NewSageMakerBackend(client sageMakerRuntimeAPI, cfg config.SageMakerConfig) *SageMakerBackend {
	return &SageMakerBackend{client: client, cfg: cfg}
}

func (b *SageMakerBackend) Name() string {
	return "sagemaker"
}

type sageMakerRequest struct {
	TextInputs  string  `json:"text_inputs"`
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
}

type sageMakerResponse struct {
	GeneratedTexts []string `json:"generated_texts"`
}

// Complete invokes the endpoint. Stop sequences are applied to the returned
// text since the endpoint contract has no stop parameter.
func (b *SageMakerBackend) Complete(ctx context.Context, prompt string, stop ...string) (string, error) {
	body, err := json.Marshal(sageMakerRequest{
		TextInputs:  prompt,
		MaxLength:   b.cfg.MaxLength,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return "", unavailable(b.Name(), "encode request", err)
	}

	out, err := b.client.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(b.cfg.EndpointName),
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
		Body:         body,
	})
	if err != nil {
		return "", unavailable(b.Name(), "invoke endpoint "+b.cfg.EndpointName, err)
	}

	var resp sageMakerResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", unavailable(b.Name(), "decode response", err)
	}
	if len(resp.GeneratedTexts) == 0 {
		return "", unavailable(b.Name(), "decode response", fmt.Errorf("no generated_texts"))
	}
	return cutAtStop(resp.GeneratedTexts[0], stop), nil
}
