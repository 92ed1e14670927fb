package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(SessionNotFound, "session not found")

	assert.Equal(t, "session not found", err.Error())
	assert.Equal(t, SessionNotFound, Code(err))
}

func TestWrap(t *testing.T) {
	t.Run("wraps with code and message", func(t *testing.T) {
		base := fmt.Errorf("dial tcp: connection refused")
		err := Wrap(base, BackendUnavailable, "memory backend unreachable")

		assert.Equal(t, "memory backend unreachable: dial tcp: connection refused", err.Error())
		assert.Equal(t, BackendUnavailable, Code(err))
		assert.True(t, stderrors.Is(err, base))
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, Unknown, "ignored"))
	})
}

func TestWithFields(t *testing.T) {
	t.Run("adds fields to structured error", func(t *testing.T) {
		err := WithFields(New(GeneratorFailed, "generation failed"), Fields{"trialId": "t-1"})

		var e *Error
		require.True(t, stderrors.As(err, &e))
		assert.Equal(t, GeneratorFailed, e.Code())
		assert.Equal(t, "t-1", e.Fields()["trialId"])
	})

	t.Run("merges with existing fields", func(t *testing.T) {
		err := WithFields(New(ScorerFailed, "scoring failed"), Fields{"a": 1})
		err = WithFields(err, Fields{"b": 2})

		var e *Error
		require.True(t, stderrors.As(err, &e))
		assert.Equal(t, 1, e.Fields()["a"])
		assert.Equal(t, 2, e.Fields()["b"])
	})

	t.Run("plain error gains unknown code", func(t *testing.T) {
		err := WithFields(fmt.Errorf("boom"), Fields{"k": "v"})
		assert.Equal(t, Unknown, Code(err))
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		assert.Nil(t, WithFields(nil, Fields{"k": "v"}))
	})
}

func TestIs(t *testing.T) {
	err := New(InvalidSessionState, "cannot pause idle session")

	assert.True(t, stderrors.Is(err, New(InvalidSessionState, "other message")))
	assert.False(t, stderrors.Is(err, New(SessionNotFound, "other message")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, RecallFailed, Code(New(RecallFailed, "x")))
	assert.Equal(t, Unknown, Code(fmt.Errorf("plain")))
}

func TestCheckContext(t *testing.T) {
	t.Run("live context passes", func(t *testing.T) {
		assert.NoError(t, CheckContext(context.Background(), "recall"))
	})

	t.Run("canceled context wrapped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := CheckContext(ctx, "recall")
		require.Error(t, err)
		assert.Equal(t, Canceled, Code(err))
		assert.True(t, stderrors.Is(err, context.Canceled))
	})
}
