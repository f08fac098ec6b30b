package llm

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

const (
	humanPrompt     = "\n\nHuman:"
	assistantPrompt = "\n\nAssistant:"
)

// anthropicRequest is the text-completions body accepted by Claude models on Bedrock.
type anthropicRequest struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	TopK              int      `json:"top_k"`
	TopP              float64  `json:"top_p"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
}

func encodeAnthropic(prompt string, p bedrockParams) ([]byte, error) {
	return json.Marshal(anthropicRequest{
		Prompt:            humanAssistantFormat(prompt),
		MaxTokensToSample: p.MaxTokens,
		Temperature:       p.Temperature,
		TopK:              p.TopK,
		TopP:              p.TopP,
		StopSequences:     p.Stop,
	})
}

func decodeAnthropic(body []byte) (string, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	return resp.Completion, nil
}

// humanAssistantFormat wraps a bare prompt in the Human/Assistant turns Claude
// text completions require. Prompts that already carry the turns are left alone.
func humanAssistantFormat(prompt string) string {
	humanAt := strings.Index(prompt, "Human:")
	assistantAt := strings.Index(prompt, "Assistant:")
	if humanAt < 0 || (assistantAt >= 0 && humanAt > assistantAt) {
		prompt = humanPrompt + " " + prompt
	}
	if !strings.Contains(prompt, "Assistant:") {
		prompt += assistantPrompt
	}
	if strings.HasPrefix(prompt, "Human:") {
		prompt = "\n\n" + prompt
	}
	return prompt
}
