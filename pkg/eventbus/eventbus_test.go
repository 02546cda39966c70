package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/weft/pkg/events"
)

func TestTriggerBus_RoundTrip(t *testing.T) {
	bus := NewTriggerBus(slog.Default())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishTriggerFired("build", "kick"))

	select {
	case msg := <-messages:
		event, err := DecodeTriggerFired(msg)
		require.NoError(t, err)

		assert.Equal(t, events.TriggerFiredEvent, event.Type)
		assert.Equal(t, "build", event.WorkflowID)
		assert.Equal(t, "kick", event.TriggerID)
		assert.NotEmpty(t, event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trigger event")
	}
}

func TestTriggerBus_PreservesOrder(t *testing.T) {
	bus := NewTriggerBus(slog.Default())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishTriggerFired("wf", "first"))
	require.NoError(t, bus.PublishTriggerFired("wf", "second"))

	var got []string

	for range 2 {
		select {
		case msg := <-messages:
			event, err := DecodeTriggerFired(msg)
			require.NoError(t, err)

			got = append(got, event.TriggerID)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for trigger events")
		}
	}

	assert.Equal(t, []string{"first", "second"}, got)
}
