// Package errors defines the categorised failures of the query chain.
//
// Every failure that crosses a component boundary carries a Kind so callers can
// decide between aborting (startup) and degrading (per question) without
// inspecting error strings.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// SecretUnavailable indicates the secret store was unreachable or a secret field was missing.
	SecretUnavailable Kind = "secret_unavailable"
	// BackendUnavailable indicates the LLM backend call failed or returned an unusable response.
	BackendUnavailable Kind = "backend_unavailable"
	// SQLExecutionError indicates the generated SQL was rejected or failed against the database.
	SQLExecutionError Kind = "sql_execution_error"
	// ResultUnparseable indicates a raw query result could not be decoded into rows.
	ResultUnparseable Kind = "result_unparseable"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
