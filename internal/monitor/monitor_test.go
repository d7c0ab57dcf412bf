package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/domain"
)

type fakeStopper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStopper) StopPump(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeStopper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Record(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func sample(margin float64, running bool) domain.Sample {
	return domain.Sample{
		Timestamp:   time.Now(),
		MarginM:     margin,
		PumpRunning: running,
	}
}

func newTestMonitor(grace time.Duration, stopper StopCommander, sink EventSink) *Monitor {
	return New(grace, stopper, sink, zerolog.Nop(), nil)
}

func waitForState(t *testing.T, m *Monitor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, stuck at %v", want, m.Status().State)
}

func TestDeadlineExpiryIssuesExactlyOneStop(t *testing.T) {
	stopper := &fakeStopper{}
	m := newTestMonitor(50*time.Millisecond, stopper, nil)

	for i := 0; i < 3; i++ {
		m.Observe(sample(-1, true))
	}
	if m.Status().State != AtRisk {
		t.Fatalf("expected AtRisk, got %v", m.Status().State)
	}

	waitForState(t, m, Stopped)

	// Extra waiting must not produce a second command.
	time.Sleep(120 * time.Millisecond)
	if got := stopper.count(); got != 1 {
		t.Fatalf("expected exactly 1 stop command, got %d", got)
	}
}

func TestMarginRecoveryBeforeDeadline(t *testing.T) {
	stopper := &fakeStopper{}
	m := newTestMonitor(200*time.Millisecond, stopper, nil)

	m.Observe(sample(-1, true))
	if m.Status().State != AtRisk {
		t.Fatalf("expected AtRisk, got %v", m.Status().State)
	}

	m.Observe(sample(+1, true))
	if m.Status().State != Safe {
		t.Fatalf("expected Safe after recovery, got %v", m.Status().State)
	}

	time.Sleep(300 * time.Millisecond)
	if got := stopper.count(); got != 0 {
		t.Fatalf("expected zero stop commands, got %d", got)
	}
}

func TestCancelOnlyHonoredWhileAtRisk(t *testing.T) {
	stopper := &fakeStopper{}
	m := newTestMonitor(500*time.Millisecond, stopper, nil)

	if m.Cancel() {
		t.Fatal("cancel in Safe must be a no-op")
	}

	m.Observe(sample(-3, true))
	if !m.Cancel() {
		t.Fatal("cancel in AtRisk must be accepted")
	}
	if m.Status().State != Safe {
		t.Fatalf("expected Safe after cancel, got %v", m.Status().State)
	}

	// Cancel is an override: margin was still negative, state is Safe anyway.
	if m.Cancel() {
		t.Fatal("second cancel in Safe must be a no-op")
	}

	time.Sleep(600 * time.Millisecond)
	if got := stopper.count(); got != 0 {
		t.Fatalf("cancelled countdown still issued %d stop commands", got)
	}
}

func TestStopFailureStaysInStoppingAndIsSurfaced(t *testing.T) {
	stopper := &fakeStopper{err: errors.New("write refused")}
	m := newTestMonitor(40*time.Millisecond, stopper, nil)

	m.Observe(sample(-1, true))
	waitForState(t, m, Stopping)

	st := m.Status()
	if st.LastError == "" {
		t.Fatal("protective stop failure must be surfaced in status")
	}

	// No automatic retry.
	time.Sleep(150 * time.Millisecond)
	if got := stopper.count(); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}

	// Independent evidence that the pump stopped advances the machine.
	m.Observe(sample(-1, false))
	if m.Status().State != Stopped {
		t.Fatalf("expected Stopped after pump-off sample, got %v", m.Status().State)
	}
}

func TestStoppedClearsOncePumpConfirmedOff(t *testing.T) {
	stopper := &fakeStopper{}
	m := newTestMonitor(30*time.Millisecond, stopper, nil)

	m.Observe(sample(-1, true))
	waitForState(t, m, Stopped)

	m.Observe(sample(-1, false))
	if m.Status().State != Safe {
		t.Fatalf("expected Safe after confirmed stop, got %v", m.Status().State)
	}
}

func TestConnectionLossCancelsCountdownAndResumes(t *testing.T) {
	stopper := &fakeStopper{}
	sink := &recordingSink{}
	m := newTestMonitor(80*time.Millisecond, stopper, sink)

	m.Observe(sample(-1, true))
	m.NotifyConnectionLost()
	if m.Status().State != ConnectionLost {
		t.Fatalf("expected ConnectionLost, got %v", m.Status().State)
	}

	// Outage outlives the old deadline; no stop may fire.
	time.Sleep(150 * time.Millisecond)
	if got := stopper.count(); got != 0 {
		t.Fatalf("stop fired during connection loss: %d", got)
	}

	// Risk still present on reconnect: a fresh full countdown is armed.
	m.Observe(sample(-1, true))
	st := m.Status()
	if st.State != AtRisk {
		t.Fatalf("expected AtRisk on resume, got %v", st.State)
	}
	if st.Remaining <= 0 || st.Remaining > 80*time.Millisecond {
		t.Fatalf("remaining not derived from fresh deadline: %v", st.Remaining)
	}

	kinds := sink.kinds()
	var sawLost, sawRestored bool
	for _, k := range kinds {
		if k == EventConnectionLost {
			sawLost = true
		}
		if k == EventConnectionRestored {
			sawRestored = true
		}
	}
	if !sawLost || !sawRestored {
		t.Fatalf("expected lost+restored events, got %v", kinds)
	}
}

func TestRemainingIsDerivedFromDeadline(t *testing.T) {
	m := newTestMonitor(time.Second, &fakeStopper{}, nil)
	m.Observe(sample(-1, true))

	first := m.Status().Remaining
	time.Sleep(50 * time.Millisecond)
	second := m.Status().Remaining

	if !(second < first) {
		t.Fatalf("remaining did not decrease with wall clock: %v then %v", first, second)
	}
	if m.Status().State != AtRisk {
		t.Fatalf("unexpected state %v", m.Status().State)
	}
}

func TestOperatorStartClearsStopped(t *testing.T) {
	stopper := &fakeStopper{}
	m := newTestMonitor(30*time.Millisecond, stopper, nil)

	m.Observe(sample(-1, true))
	waitForState(t, m, Stopped)

	m.NotifyStartRequested()
	if m.Status().State != Safe {
		t.Fatalf("expected Safe after operator start, got %v", m.Status().State)
	}
}
