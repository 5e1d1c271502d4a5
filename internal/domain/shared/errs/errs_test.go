package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	sentinel := New(Validation, "offer: invalid offer")
	err := fmt.Errorf("%w: price must be positive", sentinel)

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, Validation, KindOf(err))
	assert.True(t, Is(err, Validation))
	assert.False(t, Is(err, Blocked))
}

func TestKindOfJoinedErrorsUsesFirst(t *testing.T) {
	first := New(IllegalTransition, "offer: illegal transition")
	second := New(Validation, "offer: invalid offer")
	err := errors.Join(first, second)

	assert.Equal(t, IllegalTransition, KindOf(err))
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Transport, "mongo: save conversation", cause)

	assert.Equal(t, "mongo: save conversation: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(New(Blocked, "blocked")))
	assert.Equal(t, Kind(""), KindOf(cause))
}
