package domain

import "time"

// EventKind tags the shape of a lifecycle/error event emitted by a Supervisor.
type EventKind string

const (
	EventProcessStarted EventKind = "process_started"
	EventProcessStopped EventKind = "process_stopped"
	EventProcessCrashed EventKind = "process_crashed"
	EventErrorDetected  EventKind = "error_detected"
)

// Event is the transport-neutral record handed to registered listeners.
// Exactly one of the payload fields is populated, matching Kind.
type Event struct {
	Kind       EventKind       `json:"kind"`
	ProcessID  string          `json:"processId"`
	InstanceID string          `json:"instanceId"`
	Timestamp  time.Time       `json:"timestamp"`

	Started *ProcessStartedPayload `json:"started,omitempty"`
	Stopped *ProcessStoppedPayload `json:"stopped,omitempty"`
	Crashed *ProcessCrashedPayload `json:"crashed,omitempty"`
	Error   *ErrorDetectedPayload  `json:"error,omitempty"`
}

type ProcessStartedPayload struct {
	PID     int    `json:"pid"`
	Command string `json:"command"`
}

type ProcessStoppedPayload struct {
	ExitCode int    `json:"exitCode"`
	Reason   string `json:"reason"`
}

type ProcessCrashedPayload struct {
	ExitCode    int    `json:"exitCode"`
	Signal      string `json:"signal,omitempty"`
	WillRestart bool   `json:"willRestart"`
}

type ErrorDetectedPayload struct {
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Hash       string   `json:"hash"`
	IsNewError bool     `json:"isNewError"`
}

// Listener receives Supervisor events. Implementations must not block;
// the Supervisor does not bound delivery latency or retry a failed send.
type Listener func(Event)
