package unitofwork

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

func TestCurrent_NoFlow(t *testing.T) {
	_, err := Current(context.Background())

	require.ErrorIs(t, err, ErrNoActiveUnitOfWork)
	assert.True(t, IsIllegalState(err))
	assert.False(t, IsStarted(context.Background()))
}

func TestCurrent_NilContext(t *testing.T) {
	_, err := Current(nil) //nolint:staticcheck // Testing nil guard intentionally
	assert.ErrorIs(t, err, ErrNoActiveUnitOfWork)
}

func TestCurrent_EmptyFlow(t *testing.T) {
	_, err := Current(WithFlow(context.Background()))
	assert.ErrorIs(t, err, ErrNoActiveUnitOfWork)
}

func TestIfStarted(t *testing.T) {
	called := false
	IfStarted(context.Background(), func(*UnitOfWork) { called = true })
	assert.False(t, called)

	u, err := StartAndGet(context.Background(), newTestMessage())
	require.NoError(t, err)

	var got *UnitOfWork
	IfStarted(u.Context(), func(active *UnitOfWork) { got = active })
	assert.Same(t, u, got)

	require.NoError(t, u.Commit())
}

func TestCorrelationData_Ambient(t *testing.T) {
	assert.Empty(t, CorrelationData(context.Background()))

	msg := newTestMessage()
	u, err := StartAndGet(context.Background(), msg,
		WithCorrelationDataProvider(messaging.NewMessageOriginProvider()),
	)
	require.NoError(t, err)

	data := CorrelationData(u.Context())
	assert.Equal(t, msg.ID, data.GetString(messaging.KeyCorrelationID))

	require.NoError(t, u.Commit())
}

func TestFlow_SeparateFlowsAreIndependent(t *testing.T) {
	first, err := StartAndGet(WithFlow(context.Background()), newTestMessage())
	require.NoError(t, err)
	second, err := StartAndGet(WithFlow(context.Background()), newTestMessage())
	require.NoError(t, err)

	assert.True(t, second.IsRoot(), "a unit in another flow is not a child")

	current, err := Current(first.Context())
	require.NoError(t, err)
	assert.Same(t, first, current)

	// Each flow completes on its own, in any order.
	require.NoError(t, first.Commit())
	require.NoError(t, second.Commit())
}

func TestFlow_ConcurrentGoroutines(t *testing.T) {
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			msg := messaging.NewMessage(fmt.Sprintf("Job%d", i), i)
			u := New(WithFlow(context.Background()), msg)
			errs <- u.Execute(func(ctx context.Context) error {
				current, err := Current(ctx)
				if err != nil {
					return err
				}
				if current != u || !current.IsRoot() {
					return fmt.Errorf("worker %d sees foreign unit %s", i, current.Message().Name)
				}
				return nil
			})
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
