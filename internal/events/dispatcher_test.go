package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishInvokesSubscribers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(zap.NewNop())

	var seen []string
	dispatcher.Subscribe(EventTicketCreated, func(_ context.Context, event Event) error {
		seen = append(seen, event.TicketID)
		return nil
	})
	dispatcher.Subscribe(EventTicketClosed, func(_ context.Context, event Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "general-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"general-1"}, seen)
}

func TestPublishContinuesPastHandlerFailure(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(zap.NewNop())

	dispatcher.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		return errors.New("handler broke")
	})
	called := false
	dispatcher.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventTicketClosed})
	require.NoError(t, err)
	assert.True(t, called)
}
