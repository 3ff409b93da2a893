package unitofwork

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIllegalStateError(t *testing.T) {
	err := illegalState("commit", PhaseClosed, "not started")

	assert.EqualError(t, err, "cannot commit unit of work in phase CLOSED: not started")
	assert.ErrorIs(t, err, ErrIllegalState)
	assert.True(t, IsIllegalState(err))
	assert.False(t, IsIllegalState(errBoom))
	assert.True(t, IsIllegalState(ErrNoActiveUnitOfWork))
}

func TestCallbackError(t *testing.T) {
	err := &CallbackError{Phase: PhaseCommit, Err: errBoom}

	assert.EqualError(t, err, "COMMIT callback failed: boom")
	assert.ErrorIs(t, err, errBoom)
}

func TestPanicError(t *testing.T) {
	assert.EqualError(t, &PanicError{Value: "kaboom"}, "panicked: kaboom")
	assert.NoError(t, (&PanicError{Value: "kaboom"}).Unwrap())
	assert.ErrorIs(t, &PanicError{Value: errBoom}, errBoom)
}

func TestJoinAfter(t *testing.T) {
	secondary := errors.New("secondary")

	assert.Same(t, errBoom, joinAfter(errBoom, nil))
	assert.Same(t, secondary, joinAfter(nil, secondary))
	assert.NoError(t, joinAfter(nil, nil))

	joined := joinAfter(errBoom, secondary)
	assert.ErrorIs(t, joined, errBoom)
	assert.ErrorIs(t, joined, secondary)
}
