// Package eventbus decouples trigger fires from workflow execution through
// an in-process message queue.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/loomworks/weft/pkg/events"
)

// TriggerBus carries TriggerFired events over a bounded in-memory channel.
type TriggerBus struct {
	pubSub *gochannel.GoChannel
}

func NewTriggerBus(logger *slog.Logger) *TriggerBus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
		},
		watermill.NewSlogLogger(logger),
	)

	return &TriggerBus{pubSub: pubSub}
}

// PublishTriggerFired enqueues one trigger activation.
func (b *TriggerBus) PublishTriggerFired(workflowID, triggerID string) error {
	event := events.TriggerFired{
		BaseEvent: events.NewBaseEvent(events.TriggerFiredEvent, workflowID),
		TriggerID: triggerID,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger event: %w", err)
	}

	return b.pubSub.Publish(events.TriggerTopic, message.NewMessage(event.ID, payload))
}

// Subscribe returns the channel of pending trigger activations.
func (b *TriggerBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, events.TriggerTopic)
}

// DecodeTriggerFired unmarshals and acks one message from the bus.
func DecodeTriggerFired(msg *message.Message) (events.TriggerFired, error) {
	var event events.TriggerFired

	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		msg.Nack()
		return event, fmt.Errorf("failed to decode trigger event: %w", err)
	}

	msg.Ack()

	return event, nil
}

func (b *TriggerBus) Close() error {
	return b.pubSub.Close()
}
