package monitor

import (
	"context"
	"time"
)

// EventKind labels a safety-relevant occurrence for auditing and alerting.
type EventKind string

const (
	EventRiskDetected       EventKind = "risk_detected"
	EventRiskCleared        EventKind = "risk_cleared"
	EventCountdownCancelled EventKind = "countdown_cancelled"
	EventProtectiveStop     EventKind = "protective_stop"
	EventProtectiveStopFail EventKind = "protective_stop_failed"
	EventPumpStopConfirmed  EventKind = "pump_stop_confirmed"
	EventConnectionLost     EventKind = "connection_lost"
	EventConnectionRestored EventKind = "connection_restored"
	EventOperatorStart      EventKind = "operator_start"
	EventOperatorStop       EventKind = "operator_stop"
)

// Event is one entry in the safety audit trail.
type Event struct {
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	State   State     `json:"state"`
	MarginM float64   `json:"margin_m"`
	Message string    `json:"message,omitempty"`
}

// EventSink receives events as they happen. Implementations must not block
// for long; the monitor emits while holding its transition lock.
type EventSink interface {
	Record(ctx context.Context, e Event)
}
