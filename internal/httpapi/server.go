// Package httpapi exposes the daemon's local control surface: status and
// history reads, pump commands, curve management, and Prometheus metrics.
// CLI subcommands are clients of this API.
package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"npsh-guard/internal/curve"
	"npsh-guard/internal/domain"
	"npsh-guard/internal/service"
	"npsh-guard/internal/storage"
)

// Core is the slice of the service the API serves.
type Core interface {
	Status() service.Snapshot
	DisplayHistory() []domain.Sample
	ExportHistory() []domain.Sample
	ActiveCurve() curve.Curve
	UploadCurve(ctx context.Context, c curve.Curve) error
	RequestStart(ctx context.Context) error
	RequestStop(ctx context.Context) error
	CancelCountdown(ctx context.Context) bool
}

// Server hosts the API on the configured listener.
type Server struct {
	core   Core
	events storage.EventStore
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New builds the API server. events and registry may be nil; the matching
// endpoints then report their absence instead of panicking.
func New(core Core, events storage.EventStore, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		core:   core,
		events: events,
		logger: logger.With().Str("component", "httpapi").Logger(),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history.csv", s.handleHistoryCSV)
	s.mux.HandleFunc("GET /api/curve", s.handleGetCurve)
	s.mux.HandleFunc("PUT /api/curve", s.handlePutCurve)
	s.mux.HandleFunc("POST /api/pump/start", s.handleStart)
	s.mux.HandleFunc("POST /api/pump/stop", s.handleStop)
	s.mux.HandleFunc("POST /api/countdown/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)

	if registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler exposes the routing table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("listen", listen).Msg("api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	samples := s.core.DisplayHistory()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(samples),
		"samples": samples,
	})
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	samples := s.core.ExportHistory()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="npsh-history.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"timestamp", "temperature_c", "pressure_bar", "flow_m3h",
		"static_head_m", "friction_loss_m", "npsha_m", "npshr_m",
		"margin_m", "pump_running",
	})

	for _, smp := range samples {
		running := "0"
		if smp.PumpRunning {
			running = "1"
		}
		_ = cw.Write([]string{
			smp.Timestamp.UTC().Format(time.RFC3339),
			fixed(smp.TemperatureC),
			fixed(smp.PressureBar),
			fixed(smp.FlowM3h),
			fixed(smp.StaticHeadM),
			fixed(smp.FrictionLossM),
			fixed(smp.AvailableHeadM),
			fixed(smp.RequiredHeadM),
			fixed(smp.MarginM),
			running,
		})
	}
	cw.Flush()
}

func (s *Server) handleGetCurve(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ActiveCurve())
}

func (s *Server) handlePutCurve(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PumpType string        `json:"pump_type"`
		Points   []curve.Point `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	c, err := curve.New(payload.PumpType, payload.Points)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.core.UploadCurve(r.Context(), c); err != nil {
		var verr *curve.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pump_type": c.PumpType,
		"points":    len(c.Points),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.core.RequestStart(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "start delivered"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.core.RequestStop(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "stop delivered"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.core.CancelCountdown(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "audit store not configured")
		return
	}
	records, err := s.events.ListRecentEvents(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(records),
		"events": records,
	})
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
