// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type LookupFunc func(string) (string, bool)

// Backend names the LLM variant answering questions.
type Backend string

const (
	BackendBedrock   Backend = "bedrock"
	BackendOpenAI    Backend = "openai"
	BackendSageMaker Backend = "sagemaker"
)

// SecretStore names where credentials are fetched from.
type SecretStore string

const (
	SecretStoreAWS     SecretStore = "aws"
	SecretStoreKeyring SecretStore = "keyring"
	SecretStoreEnv     SecretStore = "env"
)

type Config struct {
	Backend    Backend
	Region     string
	HTTP       HTTPConfig
	Secrets    SecretsConfig
	Database   DatabaseConfig
	Exemplars  ExemplarConfig
	Embeddings EmbeddingConfig
	Chain      ChainConfig
	Bedrock    BedrockConfig
	OpenAI     OpenAIConfig
	SageMaker  SageMakerConfig
	Log        LogConfig
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type SecretsConfig struct {
	Store          SecretStore
	KeyringService string
}

type DatabaseConfig struct {
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	SchemaSampleRows int
}

type ExemplarConfig struct {
	Source     string
	Count      int
	S3Endpoint string
	S3UseSSL   bool
}

type EmbeddingConfig struct {
	Provider      string
	Model         string
	OllamaBaseURL string
	Dimensions    int
}

type ChainConfig struct {
	ResultLimit     int
	MaxStringLength int
	// PromptPrefixFile replaces the PostgreSQL instructions at the top of
	// every prompt. The file is a text/template over {{.TopK}}.
	PromptPrefixFile string
}

type BedrockConfig struct {
	ModelID       string
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	StopSequences []string
}

type OpenAIConfig struct {
	Model       string
	Temperature float64
	BaseURL     string
}

type SageMakerConfig struct {
	EndpointName string
	MaxLength    int
	Temperature  float64
}

type LogConfig struct {
	Level zerolog.Level
	JSON  bool
}

func LoadFromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := defaults()

	backend := string(cfg.Backend)
	if err := applyString(lookup, "NLQ_BACKEND", &backend); err != nil {
		return Config{}, err
	}
	cfg.Backend = Backend(strings.ToLower(backend))
	if !isValidBackend(cfg.Backend) {
		return Config{}, fmt.Errorf("invalid NLQ_BACKEND: %q (supported: bedrock, openai, sagemaker)", backend)
	}

	store := string(cfg.Secrets.Store)
	appliers := []func() error{
		func() error { return applyString(lookup, "REGION_NAME", &cfg.Region) },
		func() error { return applyString(lookup, "ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "NLQ_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "NLQ_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "NLQ_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "NLQ_SECRET_STORE", &store) },
		func() error { return applyString(lookup, "NLQ_KEYRING_SERVICE", &cfg.Secrets.KeyringService) },
		func() error { return applyString(lookup, "DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyInt(lookup, "DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error { return applyDuration(lookup, "DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime) },
		func() error { return applyInt(lookup, "NLQ_SCHEMA_SAMPLE_ROWS", &cfg.Database.SchemaSampleRows) },
		func() error { return applyString(lookup, "NLQ_EXEMPLARS", &cfg.Exemplars.Source) },
		func() error { return applyInt(lookup, "NLQ_EXEMPLAR_COUNT", &cfg.Exemplars.Count) },
		func() error { return applyString(lookup, "NLQ_EXEMPLARS_S3_ENDPOINT", &cfg.Exemplars.S3Endpoint) },
		func() error { return applyBool(lookup, "NLQ_EXEMPLARS_S3_USE_SSL", &cfg.Exemplars.S3UseSSL) },
		func() error { return applyString(lookup, "NLQ_EMBEDDINGS_PROVIDER", &cfg.Embeddings.Provider) },
		func() error { return applyString(lookup, "HUGGING_FACE_EMBEDDINGS_MODEL", &cfg.Embeddings.Model) },
		func() error { return applyString(lookup, "NLQ_EMBEDDINGS_MODEL", &cfg.Embeddings.Model) },
		func() error { return applyString(lookup, "OLLAMA_BASE_URL", &cfg.Embeddings.OllamaBaseURL) },
		func() error { return applyInt(lookup, "NLQ_EMBEDDINGS_DIMENSIONS", &cfg.Embeddings.Dimensions) },
		func() error { return applyInt(lookup, "NLQ_RESULT_LIMIT", &cfg.Chain.ResultLimit) },
		func() error { return applyInt(lookup, "NLQ_MAX_STRING_LENGTH", &cfg.Chain.MaxStringLength) },
		func() error { return applyString(lookup, "NLQ_PROMPT_PREFIX_FILE", &cfg.Chain.PromptPrefixFile) },
		func() error { return applyString(lookup, "MODEL_NAME", &cfg.Bedrock.ModelID) },
		func() error { return applyString(lookup, "MODEL_NAME", &cfg.OpenAI.Model) },
		func() error { return applyFloat(lookup, "TEMPERATURE", &cfg.Bedrock.Temperature) },
		func() error { return applyFloat(lookup, "TEMPERATURE", &cfg.OpenAI.Temperature) },
		func() error { return applyFloat(lookup, "TEMPERATURE", &cfg.SageMaker.Temperature) },
		func() error { return applyInt(lookup, "MAX_TOKENS_TO_SAMPLE", &cfg.Bedrock.MaxTokens) },
		func() error { return applyInt(lookup, "TOP_K", &cfg.Bedrock.TopK) },
		func() error { return applyFloat(lookup, "TOP_P", &cfg.Bedrock.TopP) },
		func() error { return applyStringList(lookup, "STOP_SEQUENCES", &cfg.Bedrock.StopSequences) },
		func() error { return applyString(lookup, "OPENAI_BASE_URL", &cfg.OpenAI.BaseURL) },
		func() error { return applyString(lookup, "ENDPOINT_NAME", &cfg.SageMaker.EndpointName) },
		func() error { return applyInt(lookup, "MAX_LENGTH", &cfg.SageMaker.MaxLength) },
		func() error { return applyBool(lookup, "LOG_JSON", &cfg.Log.JSON) },
		func() error { return applyLogFormat(lookup, "LOG_FORMAT", &cfg.Log.JSON) },
		func() error { return applyLogLevel(lookup, "LOG_LEVEL", &cfg.Log.Level) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	cfg.Secrets.Store = SecretStore(strings.ToLower(store))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Backend: BackendBedrock,
		Region:  "us-east-1",
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Secrets: SecretsConfig{
			Store:          SecretStoreAWS,
			KeyringService: "nlq",
		},
		Database: DatabaseConfig{
			SSLMode:          "require",
			MaxOpenConns:     5,
			MaxIdleConns:     5,
			ConnMaxLifetime:  30 * time.Minute,
			SchemaSampleRows: 3,
		},
		Exemplars: ExemplarConfig{
			Source:     "moma_examples.yaml",
			Count:      3,
			S3Endpoint: "s3.amazonaws.com",
			S3UseSSL:   true,
		},
		Embeddings: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "all-minilm",
			Dimensions: 384,
		},
		Chain: ChainConfig{
			ResultLimit:     5,
			MaxStringLength: 300,
		},
		Bedrock: BedrockConfig{
			ModelID:       "anthropic.claude-instant-v1",
			MaxTokens:     4096,
			Temperature:   0.3,
			TopK:          250,
			TopP:          1,
			StopSequences: []string{"\n\nHuman"},
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-3.5-turbo",
			Temperature: 0,
		},
		SageMaker: SageMakerConfig{
			MaxLength:   2048,
			Temperature: 0,
		},
		Log: LogConfig{
			Level: zerolog.InfoLevel,
		},
	}
}

func (c Config) validate() error {
	switch c.Secrets.Store {
	case SecretStoreAWS, SecretStoreKeyring, SecretStoreEnv:
	default:
		return fmt.Errorf("invalid NLQ_SECRET_STORE: %q (supported: aws, keyring, env)", c.Secrets.Store)
	}
	if c.Region == "" {
		return fmt.Errorf("REGION_NAME is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Exemplars.Source == "" {
		return fmt.Errorf("NLQ_EXEMPLARS is required")
	}
	if c.Exemplars.Count < 1 {
		return fmt.Errorf("NLQ_EXEMPLAR_COUNT must be positive, got %d", c.Exemplars.Count)
	}
	if c.Chain.ResultLimit < 1 {
		return fmt.Errorf("NLQ_RESULT_LIMIT must be positive, got %d", c.Chain.ResultLimit)
	}
	if c.Backend == BackendSageMaker && c.SageMaker.EndpointName == "" {
		return fmt.Errorf("ENDPOINT_NAME is required for the sagemaker backend")
	}
	return nil
}

// ModelLabel is the model identifier shown to users for the active backend.
func (c Config) ModelLabel() string {
	switch c.Backend {
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendSageMaker:
		return c.SageMaker.EndpointName
	default:
		return c.Bedrock.ModelID
	}
}

func isValidBackend(b Backend) bool {
	switch b {
	case BackendBedrock, BackendOpenAI, BackendSageMaker:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyStringList accepts either a JSON array or a comma-separated list.
// Escape sequences such as \n are honoured in the JSON form only.
func applyStringList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var values []string
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = values
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

// applyLogFormat accepts "json" or "console".
func applyLogFormat(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		*dst = true
	case "console", "text":
		*dst = false
	default:
		return fmt.Errorf("invalid %s: %q (supported: json, console)", key, raw)
	}
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *zerolog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = level
	return nil
}
