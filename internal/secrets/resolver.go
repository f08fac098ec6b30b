package secrets

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/nlq/internal/config"
	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

// Logical secret names shared with the infrastructure that provisions them.
const (
	SecretRDSURI       = "/nlq/RDS_URI"
	SecretDBUsername   = "/nlq/NLQAppUsername"
	SecretDBPassword   = "/nlq/NLQAppUserPassword"
	SecretOpenAIAPIKey = "/nlq/OpenAIAPIKey"
)

// Credentials is the resolved database connection bundle. It is only ever
// constructed fully populated.
type Credentials struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

// URI renders the SQLAlchemy-style connection string used by the data loader.
func (c Credentials) URI() string {
	return fmt.Sprintf("postgresql+psycopg2://%s:%s@%s:%s/%s", c.Username, c.Password, c.Host, c.Port, c.Database)
}

// DSN renders a lib/pq connection URL with escaped user info.
func (c Credentials) DSN(sslMode string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if sslMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	}
	return u.String()
}

// Redacted is safe to log.
func (c Credentials) Redacted() string {
	return Mask(c.URI())
}

// Resolver fetches secrets on every call; nothing is cached.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// NewStore builds the Store selected by configuration.
func NewStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Secrets.Store {
	case config.SecretStoreAWS:
		return NewAWSStore(ctx, cfg.Region)
	case config.SecretStoreKeyring:
		return NewKeyringStore(cfg.Secrets.KeyringService)
	case config.SecretStoreEnv:
		return NewEnvStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown secret store %q", cfg.Secrets.Store)
	}
}

// DatabaseCredentials resolves the composite endpoint secret plus the username
// and password secrets. Any missing piece fails the whole bundle.
func (r *Resolver) DatabaseCredentials(ctx context.Context) (Credentials, error) {
	raw, err := r.store.Get(ctx, SecretRDSURI)
	if err != nil {
		return Credentials{}, err
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return Credentials{}, apperrors.Wrap(apperrors.SecretUnavailable, "decode "+SecretRDSURI, err)
	}

	var creds Credentials
	fields := []struct {
		key string
		dst *string
	}{
		{"RDSDBInstanceEndpointAddress", &creds.Host},
		{"RDSDBInstanceEndpointPort", &creds.Port},
		{"NLQAppDatabaseName", &creds.Database},
	}
	for _, f := range fields {
		value, ok := blobString(blob, f.key)
		if !ok {
			return Credentials{}, apperrors.New(apperrors.SecretUnavailable, fmt.Sprintf("%s is missing field %s", SecretRDSURI, f.key))
		}
		*f.dst = value
	}

	if creds.Username, err = r.store.Get(ctx, SecretDBUsername); err != nil {
		return Credentials{}, err
	}
	if creds.Password, err = r.store.Get(ctx, SecretDBPassword); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// APIKey resolves the third-party chat model API key.
func (r *Resolver) APIKey(ctx context.Context) (string, error) {
	key, err := r.store.Get(ctx, SecretOpenAIAPIKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

func blobString(blob map[string]any, key string) (string, bool) {
	switch v := blob[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

var reDSNPass = regexp.MustCompile(`(?i)(://)([^:/@\s]+):(\S+)(@)`)

// Mask replaces user info embedded in connection strings with "*".
func Mask(s string) string {
	return reDSNPass.ReplaceAllString(s, "$1*:*$4")
}
