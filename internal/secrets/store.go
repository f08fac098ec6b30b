// Package secrets resolves database credentials and API keys from an external
// key-value secret store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

// Store fetches a single secret value by its logical name.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads secrets from AWS Secrets Manager.
type AWSStore struct {
	client secretsManagerAPI
}

// NewAWSStore builds a Secrets Manager client for region using the default
// credential chain.
func NewAWSStore(ctx context.Context, region string) (*AWSStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SecretUnavailable, "load aws config", err)
	}
	return &AWSStore{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

func (s *AWSStore) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.SecretUnavailable, "get secret "+name, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", apperrors.New(apperrors.SecretUnavailable, "secret "+name+" has no string value")
	}
	return *out.SecretString, nil
}

// KeyringStore reads secrets from the local OS keychain. Intended for running
// the app on a workstation without AWS access.
type KeyringStore struct {
	ring keyring.Keyring
}

func NewKeyringStore(serviceName string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SecretUnavailable, "open keyring", err)
	}
	return &KeyringStore{ring: ring}, nil
}

func (s *KeyringStore) Get(_ context.Context, name string) (string, error) {
	item, err := s.ring.Get(name)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", apperrors.New(apperrors.SecretUnavailable, "secret "+name+" not found in keyring")
		}
		return "", apperrors.Wrap(apperrors.SecretUnavailable, "get secret "+name, err)
	}
	if len(item.Data) == 0 {
		return "", apperrors.New(apperrors.SecretUnavailable, "secret "+name+" is empty")
	}
	return string(item.Data), nil
}

// EnvStore maps secret names onto environment variables:
// "/nlq/RDS_URI" is read from NLQ_SECRET_RDS_URI.
type EnvStore struct {
	lookup func(string) (string, bool)
}

func NewEnvStore(lookup func(string) (string, bool)) *EnvStore {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvStore{lookup: lookup}
}

func (s *EnvStore) Get(_ context.Context, name string) (string, error) {
	key := EnvKey(name)
	value, ok := s.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", apperrors.New(apperrors.SecretUnavailable, fmt.Sprintf("secret %s not set (expected %s)", name, key))
	}
	return value, nil
}

// EnvKey returns the environment variable consulted by EnvStore for a secret name.
func EnvKey(name string) string {
	if key, ok := wellKnownEnvKeys[name]; ok {
		return key
	}
	base := name[strings.LastIndex(name, "/")+1:]
	return "NLQ_SECRET_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, base)
}

var wellKnownEnvKeys = map[string]string{
	SecretRDSURI:       "NLQ_SECRET_RDS_URI",
	SecretDBUsername:   "NLQ_SECRET_DB_USERNAME",
	SecretDBPassword:   "NLQ_SECRET_DB_PASSWORD",
	SecretOpenAIAPIKey: "NLQ_SECRET_OPENAI_API_KEY",
}
