// Package exemplar loads the few-shot question/SQL examples and selects the ones
// most similar to an incoming question.
package exemplar

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exemplar is one worked example shown to the model before the live question.
type Exemplar struct {
	TableInfo string `yaml:"table_info" json:"table_info"`
	Input     string `yaml:"input" json:"input"`
	SQLCmd    string `yaml:"sql_cmd" json:"sql_cmd"`
	SQLResult string `yaml:"sql_result" json:"sql_result"`
	Answer    string `yaml:"answer" json:"answer"`
}

// LoadOptions configures how s3:// sources are fetched.
type LoadOptions struct {
	S3Endpoint string
	S3UseSSL   bool
	Region     string
}

// Load reads the exemplar set from a local file or an s3://bucket/key URL.
// A missing, empty or malformed source is an error.
func Load(ctx context.Context, source string, opts LoadOptions) ([]Exemplar, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("exemplar source is required")
	}

	var (
		rc  io.ReadCloser
		err error
	)
	if bucket, key, ok := splitS3URL(source); ok {
		getter, gerr := newS3Getter(opts)
		if gerr != nil {
			return nil, gerr
		}
		rc, err = getter.GetObject(ctx, bucket, key)
	} else {
		rc, err = os.Open(source)
	}
	if err != nil {
		return nil, fmt.Errorf("open exemplars %s: %w", source, err)
	}
	defer rc.Close()

	return Decode(rc)
}

// Decode parses a YAML list of exemplars.
func Decode(r io.Reader) ([]Exemplar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exemplars: %w", err)
	}
	var set []Exemplar
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse exemplars: %w", err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("exemplar set is empty")
	}
	for i, ex := range set {
		if strings.TrimSpace(ex.Input) == "" || strings.TrimSpace(ex.SQLCmd) == "" {
			return nil, fmt.Errorf("exemplar %d: input and sql_cmd are required", i)
		}
	}
	return set, nil
}

func splitS3URL(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, strings.TrimPrefix(key, "/"), true
}
