// Package events defines the event bus and the events published by an
// RCON session.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventSessionConnected  EventType = "session_connected"
	EventSessionAuthFailed EventType = "session_auth_failed"
	EventSessionClosed     EventType = "session_closed"

	// Command outcomes
	EventCommandExecuted EventType = "command_executed"
	EventCommandFailed   EventType = "command_failed"

	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// SessionPayload accompanies the session lifecycle events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Address   string `json:"address"`
	Reason    string `json:"reason,omitempty"`
}

// CommandPayload accompanies command_executed and command_failed.
type CommandPayload struct {
	SessionID string        `json:"session_id"`
	Address   string        `json:"address"`
	Command   string        `json:"command"`
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Multi     bool          `json:"multi_packet"`
}
