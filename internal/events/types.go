// Package events defines the session lifecycle events published by the login
// helper and the in-process bus that carries them to audit and telemetry sinks.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Handshake events
	EventSessionStarted EventType = "session_started"
	EventConfigDenied   EventType = "config_denied"
	EventLoginAccepted  EventType = "login_accepted"
	EventLoginRejected  EventType = "login_rejected"

	// Steady state events
	EventClientCommand EventType = "client_command"
	EventRevalidated   EventType = "revalidated"

	// Terminal event, always the last one a session emits
	EventSessionEnded EventType = "session_ended"
)

// AllEventTypes lists every session event, in lifecycle order.
var AllEventTypes = []EventType{
	EventSessionStarted,
	EventConfigDenied,
	EventLoginAccepted,
	EventLoginRejected,
	EventClientCommand,
	EventRevalidated,
	EventSessionEnded,
}

// EndReason says why a session ended.
type EndReason string

const (
	EndReasonBye          EndReason = "bye"
	EndReasonEndOfStream  EndReason = "end_of_stream"
	EndReasonDenied       EndReason = "config_denied"
	EndReasonRejected     EndReason = "credential_rejected"
	EndReasonProbeTimeout EndReason = "probe_timeout"
	EndReasonCancelled    EndReason = "cancelled"
	EndReasonError        EndReason = "error"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// SessionStartedPayload is emitted once the helper begins the handshake.
type SessionStartedPayload struct {
	PID int `json:"pid"`
}

// ConfigDeniedPayload is emitted when a probed client setting is disabled.
type ConfigDeniedPayload struct {
	CVar     string `json:"cvar"`
	Username string `json:"username"` // empty when denied before login
}

// LoginPayload is emitted for both accepted and rejected logins.
type LoginPayload struct {
	Username string `json:"username"`
}

// ClientCommandPayload is emitted for every recognised in-game command.
type ClientCommandPayload struct {
	Username string `json:"username"`
	Command  string `json:"command"`
	Annoy    bool   `json:"annoy"` // annoyance flag after the command ran
}

// RevalidatedPayload is emitted after a steady state re-check passes.
type RevalidatedPayload struct {
	Username string `json:"username"`
	CVar     string `json:"cvar"`
	Cycle    int    `json:"cycle"`
}

// SessionEndedPayload is emitted when the session terminates for any reason.
type SessionEndedPayload struct {
	Username string        `json:"username"`
	Reason   EndReason     `json:"reason"`
	Duration time.Duration `json:"duration_ns"`
	Sent     uint64        `json:"sent"`
	Received uint64        `json:"received"`
}
