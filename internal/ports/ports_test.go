package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

func TestMessageHandlerFunc(t *testing.T) {
	var handler MessageHandler = MessageHandlerFunc(func(_ context.Context, msg messaging.Message) (any, error) {
		return msg.Name, nil
	})

	got, err := handler.Handle(context.Background(), messaging.NewMessage("ping", nil))

	require.NoError(t, err)
	assert.Equal(t, "ping", got)
}
