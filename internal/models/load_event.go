package models

import "time"

// Event types written to the event log.
const (
	EventStart      = "START"
	EventStop       = "STOP"
	EventModeChange = "MODE_CHANGE"
	EventError      = "ERROR"
	EventCommand    = "COMMAND"
	EventConnect    = "CONNECT"
)

// LoadEvent is a single log entry.
type LoadEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // START | STOP | MODE_CHANGE | ERROR | COMMAND | CONNECT
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
