package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeTokenRevoked, "please log in again")
		assert.True(t, HasCode(err, CodeTokenRevoked))
		assert.False(t, HasCode(err, CodeTokenExpired))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("verify: %w", New(CodeAccountInactive, "account inactive"))
		assert.True(t, HasCode(err, CodeAccountInactive))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := Wrap(cause, CodeCacheUnavailable, "credential store unavailable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeCacheUnavailable, CodeOf(err))
	assert.Equal(t, "credential store unavailable", err.Message)
}

func TestErrorIs_ComparesCodeAndMessage(t *testing.T) {
	err := New(CodeUnauthorized, "invalid token")
	require.ErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	assert.False(t, errors.Is(err, New(CodeUnauthorized, "token has expired")))
}
