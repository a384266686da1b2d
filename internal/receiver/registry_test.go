package receiver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry()

	var seen []standardwebhooks.EventType
	registry.Register(standardwebhooks.EventStampUploaded, func(ctx context.Context, event *standardwebhooks.Event) error {
		seen = append(seen, event.Type)
		return nil
	})

	handled, err := registry.Dispatch(context.Background(), &standardwebhooks.Event{Type: standardwebhooks.EventStampUploaded})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []standardwebhooks.EventType{standardwebhooks.EventStampUploaded}, seen)
}

func TestRegistryUnhandledType(t *testing.T) {
	registry := NewRegistry()

	handled, err := registry.Dispatch(context.Background(), &standardwebhooks.Event{Type: "credit.purchased"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRegistryHandlerError(t *testing.T) {
	registry := NewRegistry()

	boom := errors.New("boom")
	registry.Register(standardwebhooks.EventOrderCancelled, func(ctx context.Context, event *standardwebhooks.Event) error {
		return boom
	})

	handled, err := registry.Dispatch(context.Background(), &standardwebhooks.Event{Type: standardwebhooks.EventOrderCancelled})
	assert.True(t, handled)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryReplacesHandler(t *testing.T) {
	registry := NewRegistry()

	calls := ""
	registry.Register(standardwebhooks.EventStampFailed, func(ctx context.Context, event *standardwebhooks.Event) error {
		calls += "first"
		return nil
	})
	registry.Register(standardwebhooks.EventStampFailed, func(ctx context.Context, event *standardwebhooks.Event) error {
		calls += "second"
		return nil
	})

	_, err := registry.Dispatch(context.Background(), &standardwebhooks.Event{Type: standardwebhooks.EventStampFailed})
	require.NoError(t, err)
	assert.Equal(t, "second", calls)
}
