package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/curve"
	"npsh-guard/internal/domain"
	"npsh-guard/internal/monitor"
	"npsh-guard/internal/service"
)

type fakeCore struct {
	snapshot  service.Snapshot
	display   []domain.Sample
	export    []domain.Sample
	active    curve.Curve
	uploadErr error
	uploaded  *curve.Curve
	started   int
	stopped   int
	cancelRet bool
}

func (f *fakeCore) Status() service.Snapshot        { return f.snapshot }
func (f *fakeCore) DisplayHistory() []domain.Sample { return f.display }
func (f *fakeCore) ExportHistory() []domain.Sample  { return f.export }
func (f *fakeCore) ActiveCurve() curve.Curve        { return f.active }

func (f *fakeCore) UploadCurve(_ context.Context, c curve.Curve) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = &c
	return nil
}

func (f *fakeCore) RequestStart(context.Context) error { f.started++; return nil }
func (f *fakeCore) RequestStop(context.Context) error  { f.stopped++; return nil }
func (f *fakeCore) CancelCountdown(context.Context) bool {
	return f.cancelRet
}

func newTestServer(core *fakeCore) *httptest.Server {
	srv := New(core, nil, nil, zerolog.Nop())
	return httptest.NewServer(srv.Handler())
}

func sample(ts time.Time, margin float64) domain.Sample {
	return domain.Sample{
		Timestamp:      ts,
		TemperatureC:   25,
		PressureBar:    3,
		FlowM3h:        480,
		AvailableHeadM: 31.5,
		RequiredHeadM:  16.4,
		MarginM:        margin,
		PumpRunning:    true,
	}
}

func TestStatusEndpoint(t *testing.T) {
	core := &fakeCore{snapshot: service.Snapshot{
		PumpType:   "8x15DMX-3",
		Connection: "connected",
		Safety:     monitor.Status{State: monitor.AtRisk, RemainingSec: 12.5},
	}}
	ts := newTestServer(core)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()

	var got service.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PumpType != "8x15DMX-3" || got.Connection != "connected" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.Safety.RemainingSec != 12.5 {
		t.Fatalf("remaining %v", got.Safety.RemainingSec)
	}
}

func TestHistoryCSVUsesExportWindow(t *testing.T) {
	now := time.Now()
	core := &fakeCore{
		display: []domain.Sample{sample(now, 1)},
		export:  []domain.Sample{sample(now.Add(-time.Second), 1), sample(now, 2)},
	}
	ts := newTestServer(core)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/history.csv")
	if err != nil {
		t.Fatalf("GET csv: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type %q", ct)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// Header plus the export window, not the display window.
	if len(rows) != 3 {
		t.Fatalf("csv has %d rows, want 3", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][8] != "margin_m" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][6] != "31.50" {
		t.Fatalf("npsha cell %q, want fixed 2dp", rows[1][6])
	}
}

func TestPutCurveValidatesBeforeInstall(t *testing.T) {
	core := &fakeCore{}
	ts := newTestServer(core)
	defer ts.Close()

	body := `{"pump_type":"8x15DMX-3","points":[{"flow":0,"required_head":1},{"flow":200,"required_head":6}]}`
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/curve", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT curve: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if core.uploaded == nil || len(core.uploaded.Points) != 2 {
		t.Fatalf("upload not forwarded: %+v", core.uploaded)
	}

	// Duplicate flow values must be rejected before reaching the core.
	core.uploaded = nil
	bad := `{"pump_type":"x","points":[{"flow":5,"required_head":1},{"flow":5,"required_head":2}]}`
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/curve", bytes.NewReader([]byte(bad)))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT bad curve: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
	if core.uploaded != nil {
		t.Fatal("invalid curve reached the core")
	}
}

func TestPumpCommands(t *testing.T) {
	core := &fakeCore{cancelRet: true}
	ts := newTestServer(core)
	defer ts.Close()

	for _, path := range []string{"/api/pump/start", "/api/pump/stop", "/api/countdown/cancel"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %s status %d", path, resp.StatusCode)
		}
	}
	if core.started != 1 || core.stopped != 1 {
		t.Fatalf("commands not forwarded: start=%d stop=%d", core.started, core.stopped)
	}

	// Commands are POST-only.
	resp, err := http.Get(ts.URL + "/api/pump/start")
	if err != nil {
		t.Fatalf("GET start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on command path: status %d", resp.StatusCode)
	}
}

func TestEventsWithoutStore(t *testing.T) {
	ts := newTestServer(&fakeCore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status %d, want 501", resp.StatusCode)
	}
}
