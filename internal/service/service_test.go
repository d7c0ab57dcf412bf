package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/alerting"
	"npsh-guard/internal/curve"
	"npsh-guard/internal/fieldbus"
	"npsh-guard/internal/monitor"
	"npsh-guard/internal/storage"
)

type fakeEventStore struct {
	mu      sync.Mutex
	records []storage.SafetyEventRecord
}

func (f *fakeEventStore) InsertEvent(_ context.Context, rec storage.SafetyEventRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func (f *fakeEventStore) ListRecentEvents(context.Context, int) ([]storage.SafetyEventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.SafetyEventRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeEventStore) DeleteEventsBefore(context.Context, time.Time) error { return nil }

func (f *fakeEventStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n alerting.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notes))
	for i, n := range f.notes {
		out[i] = n.Kind
	}
	return out
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Options{
		PumpType:    curve.DefaultPumpType,
		GracePeriod: 30 * time.Second,
		Interval:    time.Second,
		Fieldbus:    fieldbus.Config{Endpoint: "127.0.0.1:1502"},
	}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestStatusBeforeFirstSample(t *testing.T) {
	svc := newTestService(t)

	snap := svc.Status()
	if snap.PumpType != curve.DefaultPumpType {
		t.Fatalf("pump type %q", snap.PumpType)
	}
	if snap.Connection != "disconnected" {
		t.Fatalf("connection %q, want disconnected before Run", snap.Connection)
	}
	if snap.Safety.State != monitor.Safe {
		t.Fatalf("safety state %v, want Safe", snap.Safety.State)
	}
	if snap.LatestSample != nil {
		t.Fatal("no sample should be present yet")
	}
}

func TestUploadCurveInstallsReplacement(t *testing.T) {
	svc := newTestService(t)

	replacement, err := curve.New(curve.DefaultPumpType, []curve.Point{
		{Flow: 0, RequiredHead: 1},
		{Flow: 500, RequiredHead: 20},
	})
	if err != nil {
		t.Fatalf("curve.New: %v", err)
	}

	if err := svc.UploadCurve(context.Background(), replacement); err != nil {
		t.Fatalf("UploadCurve: %v", err)
	}
	if got := len(svc.ActiveCurve().Points); got != 2 {
		t.Fatalf("active curve has %d points, want 2", got)
	}

	// An invalid upload must leave the active curve untouched.
	bad := curve.Curve{PumpType: curve.DefaultPumpType}
	if err := svc.UploadCurve(context.Background(), bad); err == nil {
		t.Fatal("empty curve must be rejected")
	}
	if got := len(svc.ActiveCurve().Points); got != 2 {
		t.Fatalf("rejected upload changed active curve: %d points", got)
	}
}

func TestEventFanoutRecordsAndFiltersAlerts(t *testing.T) {
	store := &fakeEventStore{}
	notifier := &fakeNotifier{}
	sink := &eventFanout{store: store, notifier: notifier, pumpType: "8x15DMX-3", logger: zerolog.Nop()}

	events := []monitor.Event{
		{Kind: monitor.EventRiskDetected, At: time.Now(), State: monitor.AtRisk, MarginM: -0.5},
		{Kind: monitor.EventRiskCleared, At: time.Now(), State: monitor.Safe, MarginM: 0.2},
		{Kind: monitor.EventProtectiveStop, At: time.Now(), State: monitor.Stopping, MarginM: -1.1},
	}
	for _, e := range events {
		sink.Record(context.Background(), e)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.count() == len(events) && len(notifier.kinds()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if store.count() != len(events) {
		t.Fatalf("audit trail has %d records, want %d", store.count(), len(events))
	}

	// risk_cleared is audit-only; only the two alertworthy kinds reach the
	// notifier.
	kinds := notifier.kinds()
	if len(kinds) != 2 {
		t.Fatalf("notifier saw %d alerts, want 2: %v", len(kinds), kinds)
	}
	for _, k := range kinds {
		if k == string(monitor.EventRiskCleared) {
			t.Fatal("risk_cleared must not be alerted")
		}
	}
}

func TestCancelCountdownWithoutRisk(t *testing.T) {
	svc := newTestService(t)
	if svc.CancelCountdown(context.Background()) {
		t.Fatal("cancel with no countdown must report false")
	}
}
