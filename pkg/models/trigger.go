package models

import (
	"encoding/json"
	"log/slog"
)

// TriggerType discriminates the trigger variants of a workflow.
type TriggerType string

const (
	TriggerTypeUnknown   TriggerType = "unknown"
	TriggerTypeAuto      TriggerType = "auto"
	TriggerTypeCron      TriggerType = "cron"
	TriggerTypeFileWatch TriggerType = "file_watch"
	TriggerTypeStructure TriggerType = "structure"
	TriggerTypeManual    TriggerType = "manual"
)

// ParseTriggerType maps a JCWF trigger "type" string onto a TriggerType.
// Unknown strings resolve to unknown and are rejected by the validator.
func ParseTriggerType(raw string, logger *slog.Logger) TriggerType {
	switch raw {
	case "auto":
		return TriggerTypeAuto
	case "cron":
		return TriggerTypeCron
	case "file_watch":
		return TriggerTypeFileWatch
	case "structure":
		return TriggerTypeStructure
	case "manual":
		return TriggerTypeManual
	}

	logger.Warn("Unknown trigger type", "type", raw)

	return TriggerTypeUnknown
}

// Trigger is one trigger record of a workflow definition.
type Trigger struct {
	Type    TriggerType `json:"type"`
	ID      string      `json:"id"`
	Enabled bool        `json:"enabled"`

	// Params carries the trigger-private payload (cron expression, watch
	// path, ...) verbatim; the trigger binder parses it on demand.
	Params json.RawMessage `json:"params,omitempty"`
}

// FileEventKind classifies filesystem events delivered to file_watch
// triggers.
type FileEventKind string

const (
	FileEventCreated  FileEventKind = "created"
	FileEventModified FileEventKind = "modified"
	FileEventDeleted  FileEventKind = "deleted"
)
