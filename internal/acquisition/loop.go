// Package acquisition runs the fixed-period sampling cycle: read the register
// block, derive the hydraulic metrics, and feed history and the safety
// monitor.
package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/curve"
	"npsh-guard/internal/domain"
	"npsh-guard/internal/fieldbus"
	"npsh-guard/internal/history"
	"npsh-guard/internal/hydraulics"
	"npsh-guard/internal/metrics"
)

// RegisterReader is the persistent-session read the loop depends on.
type RegisterReader interface {
	ReadRegisters(address, quantity uint16) ([]uint16, error)
}

// SafetyObserver consumes the per-cycle outcome.
type SafetyObserver interface {
	Observe(s domain.Sample)
	NotifyConnectionLost()
}

// Config tunes the loop.
type Config struct {
	Interval time.Duration
}

// Loop is the clock-driven sampler. Cycles are cooperative and never overlap:
// a tick that arrives while a cycle is still running is dropped by the ticker,
// never queued, so a slow transport cannot build a backlog.
type Loop struct {
	cfg     Config
	session RegisterReader
	curves  *curve.Repository
	display *history.Ring
	export  *history.Ring
	safety  SafetyObserver
	logger  zerolog.Logger
	metrics *metrics.Set
}

// NewLoop wires the cycle dependencies.
func NewLoop(cfg Config, session RegisterReader, curves *curve.Repository, display, export *history.Ring, safety SafetyObserver, logger zerolog.Logger, m *metrics.Set) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("acquisition: interval must be > 0")
	}
	if session == nil || curves == nil || display == nil || export == nil || safety == nil {
		return nil, errors.New("acquisition: missing dependency")
	}
	return &Loop{
		cfg:     cfg,
		session: session,
		curves:  curves,
		display: display,
		export:  export,
		safety:  safety,
		logger:  logger.With().Str("component", "acquisition").Logger(),
		metrics: m,
	}, nil
}

// Run ticks until ctx is cancelled. The loop itself never stops on read
// failure; it signals the monitor and retries on the next tick.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.CycleOnce(time.Now())
		}
	}
}

// CycleOnce performs exactly one acquisition cycle. On success the sample is
// appended to both history rings and handed to the safety monitor; on failure
// nothing is appended and ConnectionLost is signalled.
func (l *Loop) CycleOnce(now time.Time) (domain.Sample, bool) {
	regs, err := l.session.ReadRegisters(fieldbus.BlockStart, fieldbus.BlockCount)
	if err != nil {
		return l.fail(err)
	}

	pv, err := fieldbus.DecodeBlock(regs)
	if err != nil {
		return l.fail(err)
	}

	// Snapshot the curve once per cycle; a concurrent replace must not change
	// the curve under a computation already in flight.
	activeCurve := l.curves.Active()

	npsha := hydraulics.AvailableHead(pv.PressureBar, pv.TemperatureC, pv.StaticHeadM, pv.FrictionLossM)
	npshr := hydraulics.RequiredHead(pv.FlowM3h, activeCurve)

	sample := domain.Sample{
		Timestamp:      now,
		TemperatureC:   pv.TemperatureC,
		PressureBar:    pv.PressureBar,
		FlowM3h:        pv.FlowM3h,
		StaticHeadM:    pv.StaticHeadM,
		FrictionLossM:  pv.FrictionLossM,
		AvailableHeadM: npsha,
		RequiredHeadM:  npshr,
		MarginM:        npsha - npshr,
		PumpRunning:    pv.PumpRunning,
	}

	l.display.Append(sample)
	l.export.Append(sample)
	l.safety.Observe(sample)

	if l.metrics != nil {
		l.metrics.CyclesTotal.Inc()
		l.metrics.AvailableHead.Set(sample.AvailableHeadM)
		l.metrics.RequiredHead.Set(sample.RequiredHeadM)
		l.metrics.Margin.Set(sample.MarginM)
	}

	l.logger.Debug().
		Float64("npsha_m", sample.AvailableHeadM).
		Float64("npshr_m", sample.RequiredHeadM).
		Float64("margin_m", sample.MarginM).
		Bool("pump_running", sample.PumpRunning).
		Msg("cycle complete")

	return sample, true
}

func (l *Loop) fail(err error) (domain.Sample, bool) {
	if l.metrics != nil {
		l.metrics.CycleFailures.Inc()
	}
	l.logger.Warn().Err(err).Msg("cycle failed, retrying next tick")
	l.safety.NotifyConnectionLost()
	return domain.Sample{}, false
}
