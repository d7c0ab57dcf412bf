// Package monitor implements the cavitation safety state machine: it consumes
// samples, owns the single grace-period countdown, and decides the protective
// stop. Collaborators observe its state; none of them run a timer of their own.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/domain"
	"npsh-guard/internal/metrics"
)

// State of the safety monitor for the running pump session.
type State int

const (
	Safe State = iota
	AtRisk
	Stopping
	Stopped
	ConnectionLost
)

func (s State) String() string {
	switch s {
	case Safe:
		return "safe"
	case AtRisk:
		return "at_risk"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case ConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state name, not the ordinal.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the state name; API clients round-trip Status.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "safe":
		*s = Safe
	case "at_risk":
		*s = AtRisk
	case "stopping":
		*s = Stopping
	case "stopped":
		*s = Stopped
	case "connection_lost":
		*s = ConnectionLost
	default:
		return fmt.Errorf("unknown safety state %q", name)
	}
	return nil
}

// ProtectiveActionError wraps a failed protective stop write. Always surfaced
// to operators; never retried automatically.
type ProtectiveActionError struct {
	Err error
}

func (e *ProtectiveActionError) Error() string {
	return fmt.Sprintf("protective stop failed: %v", e.Err)
}

func (e *ProtectiveActionError) Unwrap() error { return e.Err }

// StopCommander issues the protective stop through the transactional write
// path. Implemented by the fieldbus manager.
type StopCommander interface {
	StopPump(ctx context.Context) error
}

// Status is the observable snapshot collaborators render. Remaining is always
// derived from the authoritative deadline, never a counter of its own.
type Status struct {
	State        State         `json:"state"`
	Remaining    time.Duration `json:"-"`
	RemainingSec float64       `json:"remaining_seconds"`
	LastError    string        `json:"last_error,omitempty"`
}

// Monitor is the single authoritative safety instance. All transitions are
// serialized under one mutex so no decision is made on stale state.
type Monitor struct {
	grace   time.Duration
	stopper StopCommander
	sink    EventSink
	logger  zerolog.Logger
	metrics *metrics.Set

	mu         sync.Mutex
	state      State
	deadline   time.Time
	timer      *time.Timer
	generation uint64
	lastMargin float64
	lastErr    error
}

// New builds a monitor in the Safe state.
func New(grace time.Duration, stopper StopCommander, sink EventSink, logger zerolog.Logger, m *metrics.Set) *Monitor {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Monitor{
		grace:   grace,
		stopper: stopper,
		sink:    sink,
		logger:  logger.With().Str("component", "safety_monitor").Logger(),
		metrics: m,
		state:   Safe,
	}
}

// Observe feeds one sample into the state machine.
func (m *Monitor) Observe(s domain.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastMargin = s.MarginM

	switch m.state {
	case Safe:
		if !s.Safe() && s.PumpRunning {
			m.armLocked(s.MarginM)
		}

	case AtRisk:
		if s.Safe() {
			m.disarmLocked()
			m.toLocked(Safe, EventRiskCleared, s.MarginM, "margin recovered before deadline")
		} else if !s.PumpRunning {
			// Risk requires a running pump; a pump that stopped on its own
			// ends the countdown.
			m.disarmLocked()
			m.toLocked(Safe, EventRiskCleared, s.MarginM, "pump no longer running")
		}

	case Stopping:
		if !s.PumpRunning {
			m.toLocked(Stopped, EventPumpStopConfirmed, s.MarginM, "pump stop confirmed by sample")
		}

	case Stopped:
		if !s.PumpRunning {
			m.lastErr = nil
			m.toLocked(Safe, EventPumpStopConfirmed, s.MarginM, "pump confirmed stopped")
		}

	case ConnectionLost:
		// Fresh sample means connectivity is back; resume from margin
		// evaluation. Any pre-outage countdown was cancelled, so a still
		// negative margin re-arms a full grace period.
		if !s.Safe() && s.PumpRunning {
			m.toLocked(AtRisk, EventConnectionRestored, s.MarginM, "connection restored, risk present")
			m.armTimerLocked()
		} else {
			m.toLocked(Safe, EventConnectionRestored, s.MarginM, "connection restored")
		}
	}

	m.updateGauges()
}

// NotifyConnectionLost moves the machine to ConnectionLost from any state and
// cancels a pending countdown.
func (m *Monitor) NotifyConnectionLost() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == ConnectionLost {
		return
	}
	m.disarmLocked()
	m.toLocked(ConnectionLost, EventConnectionLost, m.lastMargin, "transport failure")
	m.updateGauges()
}

// Cancel handles the operator's cancel request. It is an override: accepted
// only while AtRisk, without re-evaluating margin. In any other state it is a
// no-op and reports false, never an error.
func (m *Monitor) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != AtRisk {
		return false
	}
	m.disarmLocked()
	m.toLocked(Safe, EventCountdownCancelled, m.lastMargin, "operator cancelled countdown")
	m.updateGauges()
	return true
}

// NotifyStartRequested clears Stopped/Stopping after an operator start so the
// next samples are judged afresh.
func (m *Monitor) NotifyStartRequested() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Stopped && m.state != Stopping {
		return
	}
	m.lastErr = nil
	m.toLocked(Safe, EventOperatorStart, m.lastMargin, "operator start request")
	m.updateGauges()
}

// Status returns the observable state. Remaining seconds are derived from the
// deadline at call time.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	if m.state == AtRisk {
		remaining := time.Until(m.deadline)
		if remaining < 0 {
			remaining = 0
		}
		st.Remaining = remaining
		st.RemainingSec = remaining.Seconds()
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// armLocked enters AtRisk and starts the grace countdown.
func (m *Monitor) armLocked(margin float64) {
	m.toLocked(AtRisk, EventRiskDetected, margin,
		fmt.Sprintf("cavitation risk, protective stop in %s unless resolved", m.grace))
	m.armTimerLocked()
}

func (m *Monitor) armTimerLocked() {
	m.generation++
	gen := m.generation
	m.deadline = time.Now().Add(m.grace)
	m.timer = time.AfterFunc(m.grace, func() { m.expire(gen) })
}

// disarmLocked stops the countdown; a timer that already fired is fenced off
// by the generation check in expire.
func (m *Monitor) disarmLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.deadline = time.Time{}
}

// expire fires on deadline. The protective stop is attempted exactly once;
// a failure leaves the machine in Stopping with the error surfaced.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != AtRisk {
		return
	}

	m.timer = nil
	m.toLocked(Stopping, EventProtectiveStop, m.lastMargin, "grace period expired, issuing protective stop")
	if m.metrics != nil {
		m.metrics.ProtectiveStops.Inc()
	}

	err := m.stopper.StopPump(context.Background())
	if err == nil {
		m.toLocked(Stopped, EventPumpStopConfirmed, m.lastMargin, "protective stop delivered")
		m.updateGauges()
		return
	}

	m.lastErr = &ProtectiveActionError{Err: err}
	if m.metrics != nil {
		m.metrics.StopFailures.Inc()
	}
	m.logger.Error().Err(err).Msg("protective stop write failed")
	m.emitLocked(EventProtectiveStopFail, m.lastMargin, m.lastErr.Error())
	m.updateGauges()
}

// toLocked commits a transition and emits its event.
func (m *Monitor) toLocked(next State, kind EventKind, margin float64, msg string) {
	prev := m.state
	m.state = next
	m.logger.Info().
		Stringer("from", prev).
		Stringer("to", next).
		Float64("margin_m", margin).
		Msg(msg)
	m.emitLocked(kind, margin, msg)
}

func (m *Monitor) emitLocked(kind EventKind, margin float64, msg string) {
	if m.sink == nil {
		return
	}
	m.sink.Record(context.Background(), Event{
		Kind:    kind,
		At:      time.Now(),
		State:   m.state,
		MarginM: margin,
		Message: msg,
	})
}

func (m *Monitor) updateGauges() {
	if m.metrics != nil {
		m.metrics.SafetyState.Set(float64(m.state))
	}
}
