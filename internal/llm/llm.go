// Package llm provides the language-model backends that continue a text-to-SQL prompt.
package llm

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"

	"github.com/JonMunkholm/nlq/internal/config"
	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

// Backend is a completion model. All variants share the same contract so the
// chain does not know which one it is talking to.
type Backend interface {
	// Complete returns the model's continuation of prompt, cut before the
	// first stop sequence. Failures carry apperrors.BackendUnavailable.
	Complete(ctx context.Context, prompt string, stop ...string) (string, error)

	// Name returns the backend name for logging and metrics.
	Name() string
}

// NewBackend builds the backend selected by cfg.Backend. apiKey is only used by
// the openai backend.
func NewBackend(ctx context.Context, cfg config.Config, apiKey string) (Backend, error) {
	switch cfg.Backend {
	case config.BackendBedrock, "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewBedrockBackend(bedrockruntime.NewFromConfig(awsCfg), cfg.Bedrock), nil

	case config.BackendOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("openai backend requires an api key")
		}
		return NewOpenAIBackend(apiKey, cfg.OpenAI), nil

	case config.BackendSageMaker:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewSageMakerBackend(sagemakerruntime.NewFromConfig(awsCfg), cfg.SageMaker), nil

	default:
		return nil, fmt.Errorf("unknown backend: %q (supported: bedrock, openai, sagemaker)", cfg.Backend)
	}
}

// ExtractSQL pulls the SQL statement out of a raw first-stage completion.
// It strips markdown fences and a leading SQLQuery: label, drops anything from
// SQLResult: onwards and keeps only the first statement.
func ExtractSQL(raw string) (string, error) {
	sql := strings.TrimSpace(raw)

	if i := strings.Index(sql, "SQLResult:"); i >= 0 {
		sql = sql[:i]
	}
	sql = strings.TrimSpace(sql)
	sql = strings.TrimPrefix(sql, "SQLQuery:")
	sql = strings.TrimSpace(sql)

	// Clean up common LLM formatting quirks
	sql = strings.TrimPrefix(sql, "```sql")
	sql = strings.TrimPrefix(sql, "```SQL")
	sql = strings.TrimPrefix(sql, "```")
	if i := strings.Index(sql, "```"); i >= 0 {
		sql = sql[:i]
	}
	sql = strings.TrimSpace(sql)

	if i := statementEnd(sql); i >= 0 {
		sql = strings.TrimSpace(sql[:i+1])
	}

	if sql == "" || sql == ";" {
		return "", apperrors.New(apperrors.BackendUnavailable, "model returned no SQL")
	}
	return sql, nil
}

// statementEnd returns the index of the first ';' outside quotes, or -1.
func statementEnd(sql string) int {
	var quote rune
	for i, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return i
		}
	}
	return -1
}

// cutAtStop truncates text before the earliest stop sequence.
func cutAtStop(text string, stop []string) string {
	end := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < end {
			end = i
		}
	}
	return text[:end]
}

func mergeStops(configured, extra []string) []string {
	out := make([]string, 0, len(configured)+len(extra))
	seen := make(map[string]bool, len(configured)+len(extra))
	for _, s := range append(append([]string{}, configured...), extra...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func unavailable(backend, msg string, err error) error {
	return apperrors.Wrap(apperrors.BackendUnavailable, backend+": "+msg, err)
}
