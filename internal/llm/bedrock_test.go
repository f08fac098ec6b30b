package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/nlq/internal/config"
	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

type fakeBedrock struct {
	in   *bedrockruntime.InvokeModelInput
	body string
	err  error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func defaultBedrockConfig() config.BedrockConfig {
	return config.BedrockConfig{
		ModelID:       "anthropic.claude-instant-v1",
		MaxTokens:     4096,
		Temperature:   0.3,
		TopK:          250,
		TopP:          1,
		StopSequences: []string{"\n\nHuman"},
	}
}

func TestBedrockAnthropic(t *testing.T) {
	client := &fakeBedrock{body: `{"completion":" SELECT count(*) FROM artists\nSQLResult: made up","stop_reason":"stop_sequence"}`}
	b := NewBedrockBackend(client, defaultBedrockConfig())

	out, err := b.Complete(context.Background(), "Question: How many artists?\nSQLQuery:", "\nSQLResult:")
	require.NoError(t, err)
	assert.Equal(t, " SELECT count(*) FROM artists", out)

	assert.Equal(t, "anthropic.claude-instant-v1", *client.in.ModelId)
	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(client.in.Body, &sent))
	assert.Equal(t, "\n\nHuman: Question: How many artists?\nSQLQuery:\n\nAssistant:", sent.Prompt)
	assert.Equal(t, 4096, sent.MaxTokensToSample)
	assert.Equal(t, 0.3, sent.Temperature)
	assert.Equal(t, 250, sent.TopK)
	assert.Equal(t, 1.0, sent.TopP)
	assert.Equal(t, []string{"\n\nHuman", "\nSQLResult:"}, sent.StopSequences)
}

func TestBedrockTitan(t *testing.T) {
	cfg := defaultBedrockConfig()
	cfg.ModelID = "amazon.titan-text-express-v1"
	client := &fakeBedrock{body: `{"results":[{"outputText":"SELECT 1"}]}`}

	out, err := NewBedrockBackend(client, cfg).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)

	var sent titanRequest
	require.NoError(t, json.Unmarshal(client.in.Body, &sent))
	assert.Equal(t, "p", sent.InputText)
	assert.Equal(t, 4096, sent.TextGenerationConfig.MaxTokenCount)
}

func TestBedrockOtherFamilies(t *testing.T) {
	cfg := defaultBedrockConfig()

	cfg.ModelID = "ai21.j2-ultra-v1"
	out, err := NewBedrockBackend(&fakeBedrock{body: `{"completions":[{"data":{"text":"A"}}]}`}, cfg).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "A", out)

	cfg.ModelID = "cohere.command-text-v14"
	out, err = NewBedrockBackend(&fakeBedrock{body: `{"generations":[{"text":"C"}]}`}, cfg).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "C", out)
}

func TestBedrockFailures(t *testing.T) {
	cfg := defaultBedrockConfig()

	_, err := NewBedrockBackend(&fakeBedrock{err: errors.New("dial tcp: connection refused")}, cfg).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.BackendUnavailable))

	_, err = NewBedrockBackend(&fakeBedrock{body: `not json`}, cfg).Complete(context.Background(), "p")
	assert.True(t, apperrors.Is(err, apperrors.BackendUnavailable))

	cfg.ModelID = "mistral.mixtral-8x7b"
	_, err = NewBedrockBackend(&fakeBedrock{}, cfg).Complete(context.Background(), "p")
	assert.True(t, apperrors.Is(err, apperrors.BackendUnavailable))
}

func TestModelProvider(t *testing.T) {
	assert.Equal(t, "anthropic", modelProvider("anthropic.claude-instant-v1"))
	assert.Equal(t, "anthropic", modelProvider("us.anthropic.claude-3-haiku-20240307-v1:0"))
	assert.Equal(t, "amazon", modelProvider("amazon.titan-text-lite-v1"))
}

func TestHumanAssistantFormat(t *testing.T) {
	assert.Equal(t, "\n\nHuman: hi\n\nAssistant:", humanAssistantFormat("hi"))
	already := "\n\nHuman: hi\n\nAssistant:"
	assert.Equal(t, already, humanAssistantFormat(already))
	assert.Equal(t, "\n\nHuman: hi\n\nAssistant:", humanAssistantFormat("Human: hi\n\nAssistant:"))
}
