package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("ask: %w", Wrap(BackendUnavailable, "complete prompt", cause))

	assert.Equal(t, BackendUnavailable, KindOf(err))
	assert.True(t, Is(err, BackendUnavailable))
	assert.False(t, Is(err, SQLExecutionError))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.False(t, Is(nil, SecretUnavailable))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "secret_unavailable: missing field", New(SecretUnavailable, "missing field").Error())
	assert.Equal(t,
		"sql_execution_error: execute: boom",
		Wrap(SQLExecutionError, "execute", stderrors.New("boom")).Error(),
	)
}
