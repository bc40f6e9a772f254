package push

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalCode(t *testing.T) {
	for _, code := range []int{4000, 4001, 4002, 4003, 4401, 4403} {
		assert.True(t, IsFatalCode(code), "code %d", code)
	}
	for _, code := range []int{1000, 1001, StatusAbnormal, 1011, 4004, 4400, 4404} {
		assert.False(t, IsFatalCode(code), "code %d", code)
	}
}

func TestCloseError_Message(t *testing.T) {
	gone := newCloseError(4002, "")
	assert.True(t, errors.Is(gone, ErrTerminal))
	assert.Equal(t, "This party could not be found.", gone.Message())

	withReason := newCloseError(4001, "Kicked by host")
	assert.Equal(t, "Kicked by host", withReason.Message())

	drop := newCloseError(StatusAbnormal, "")
	assert.False(t, errors.Is(drop, ErrTerminal))
	assert.Equal(t, "Live updates disconnected.", drop.Message())
}
