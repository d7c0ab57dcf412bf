// Package service composes the daemon core: connection manager, acquisition
// loop, safety monitor, history and curve repository, behind one facade the
// HTTP API and CLI commands talk to.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/acquisition"
	"npsh-guard/internal/alerting"
	"npsh-guard/internal/curve"
	"npsh-guard/internal/domain"
	"npsh-guard/internal/fieldbus"
	"npsh-guard/internal/history"
	"npsh-guard/internal/metrics"
	"npsh-guard/internal/monitor"
	"npsh-guard/internal/storage"
)

// Options carries everything the service needs to assemble the core.
type Options struct {
	PumpType    string
	GracePeriod time.Duration
	Interval    time.Duration

	Fieldbus fieldbus.Config

	DisplayCapacity int
	ExportCapacity  int

	CurveStore curve.Store
	EventStore storage.EventStore
	Notifier   alerting.Notifier
}

// Snapshot is the combined state the status surfaces render.
type Snapshot struct {
	PumpType     string         `json:"pump_type"`
	Connection   string         `json:"connection"`
	Safety       monitor.Status `json:"safety"`
	LatestSample *domain.Sample `json:"latest_sample,omitempty"`
}

// Service is the daemon core.
type Service struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Set

	manager *fieldbus.Manager
	monitor *monitor.Monitor
	loop    *acquisition.Loop
	curves  *curve.Repository
	display *history.Ring
	export  *history.Ring
}

// New wires the core components together. The monitor's protective stop goes
// through the manager's transactional write path.
func New(opts Options, logger zerolog.Logger, m *metrics.Set) (*Service, error) {
	if opts.PumpType == "" {
		opts.PumpType = curve.DefaultPumpType
	}
	if opts.DisplayCapacity <= 0 {
		opts.DisplayCapacity = 120
	}
	if opts.ExportCapacity <= 0 {
		opts.ExportCapacity = 240
	}

	manager, err := fieldbus.NewManager(opts.Fieldbus, logger, m)
	if err != nil {
		return nil, err
	}

	repo := curve.NewRepository(opts.CurveStore, logger)

	svc := &Service{
		opts:    opts,
		logger:  logger.With().Str("component", "service").Logger(),
		metrics: m,
		manager: manager,
		curves:  repo,
		display: history.NewRing(opts.DisplayCapacity),
		export:  history.NewRing(opts.ExportCapacity),
	}

	sink := &eventFanout{
		store:    opts.EventStore,
		notifier: opts.Notifier,
		pumpType: opts.PumpType,
		logger:   logger.With().Str("component", "event_sink").Logger(),
	}

	svc.monitor = monitor.New(opts.GracePeriod, manager, sink, logger, m)

	loop, err := acquisition.NewLoop(
		acquisition.Config{Interval: opts.Interval},
		manager, repo, svc.display, svc.export, svc.monitor, logger, m,
	)
	if err != nil {
		return nil, err
	}
	svc.loop = loop

	return svc, nil
}

// Run loads the active curve, then drives the connection manager and the
// acquisition loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.curves.Load(ctx, s.opts.PumpType)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- s.manager.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- s.loop.Run(ctx)
	}()

	err := <-errCh
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Status assembles the combined snapshot from authoritative state.
func (s *Service) Status() Snapshot {
	snap := Snapshot{
		PumpType:   s.opts.PumpType,
		Connection: s.manager.State().String(),
		Safety:     s.monitor.Status(),
	}
	if latest, ok := s.display.Latest(); ok {
		snap.LatestSample = &latest
	}
	return snap
}

// DisplayHistory returns the bounded display window, oldest first.
func (s *Service) DisplayHistory() []domain.Sample {
	return s.display.Snapshot()
}

// ExportHistory returns the bounded export window, oldest first.
func (s *Service) ExportHistory() []domain.Sample {
	return s.export.Snapshot()
}

// ActiveCurve returns the curve currently used by the calculation cycle.
func (s *Service) ActiveCurve() curve.Curve {
	return s.curves.Active()
}

// UploadCurve validates, persists, and atomically installs a replacement
// curve. A validation or persistence failure leaves the active curve as is.
func (s *Service) UploadCurve(ctx context.Context, c curve.Curve) error {
	_, err := s.curves.Replace(ctx, c.PumpType, c.Points)
	return err
}

// RequestStart issues an operator start through the transactional write path.
func (s *Service) RequestStart(ctx context.Context) error {
	if err := s.manager.StartPump(ctx); err != nil {
		return fmt.Errorf("start pump: %w", err)
	}
	s.monitor.NotifyStartRequested()
	s.logger.Info().Msg("operator start delivered")
	return nil
}

// RequestStop issues an operator stop. The monitor is not transitioned here:
// the next samples showing the pump off move the machine on real evidence.
func (s *Service) RequestStop(ctx context.Context) error {
	if err := s.manager.StopPump(ctx); err != nil {
		return fmt.Errorf("stop pump: %w", err)
	}
	s.logger.Info().Msg("operator stop delivered")
	return nil
}

// CancelCountdown forwards the operator override. False means there was no
// countdown to cancel.
func (s *Service) CancelCountdown(context.Context) bool {
	return s.monitor.Cancel()
}

// eventFanout forwards monitor events to the audit store and the alert
// notifier. The monitor emits under its transition lock, so delivery is
// handed off to a goroutine and failures are logged, never propagated.
type eventFanout struct {
	store    storage.EventStore
	notifier alerting.Notifier
	pumpType string
	logger   zerolog.Logger
}

func (f *eventFanout) Record(_ context.Context, e monitor.Event) {
	if f.store == nil && f.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if f.store != nil {
			rec := storage.SafetyEventRecord{
				Kind:      string(e.Kind),
				State:     e.State.String(),
				MarginM:   e.MarginM,
				Message:   e.Message,
				CreatedAt: e.At,
			}
			if _, err := f.store.InsertEvent(ctx, rec); err != nil {
				f.logger.Warn().Err(err).Str("kind", string(e.Kind)).Msg("audit insert failed")
			}
		}

		if f.notifier != nil && alertworthy(e.Kind) {
			note := alerting.Notification{
				Kind:     string(e.Kind),
				At:       e.At,
				State:    e.State.String(),
				MarginM:  e.MarginM,
				PumpType: f.pumpType,
				Message:  e.Message,
			}
			if err := f.notifier.Notify(ctx, note); err != nil {
				f.logger.Warn().Err(err).Str("kind", string(e.Kind)).Msg("alert delivery failed")
			}
		}
	}()
}

// alertworthy keeps routine transitions out of operators' pockets; the audit
// trail still records everything.
func alertworthy(kind monitor.EventKind) bool {
	switch kind {
	case monitor.EventRiskDetected,
		monitor.EventProtectiveStop,
		monitor.EventProtectiveStopFail,
		monitor.EventConnectionLost:
		return true
	default:
		return false
	}
}
