package unitofwork

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionResult(t *testing.T) {
	ok := NewExecutionResult(42, nil)
	assert.False(t, ok.IsExceptional())
	assert.Equal(t, 42, ok.Value())
	assert.NoError(t, ok.Err())

	v, found := ResultValue[int](ok)
	assert.True(t, found)
	assert.Equal(t, 42, v)

	_, found = ResultValue[string](ok)
	assert.False(t, found)

	failed := NewExecutionResult(nil, errors.New("boom"))
	assert.True(t, failed.IsExceptional())
	assert.EqualError(t, failed.Err(), "boom")

	_, found = ResultValue[int](failed)
	assert.False(t, found)

	_, found = ResultValue[int](nil)
	assert.False(t, found)
}
