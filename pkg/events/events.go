// Package events defines the event types exchanged between the trigger
// engine and the runtime driver.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries trigger fires from the engine to the driver.
const TriggerTopic = "weft.triggers"

const (
	TriggerFiredEvent EventType = "trigger.fired"
	RunCompletedEvent EventType = "run.completed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

// TriggerFired is emitted for every trigger activation. The driver consumes
// it and invokes the orchestrator; neither side references the other.
type TriggerFired struct {
	BaseEvent

	TriggerID string `json:"trigger_id"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

// RunCompleted reports the terminal outcome of a workflow run.
type RunCompleted struct {
	BaseEvent

	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}
