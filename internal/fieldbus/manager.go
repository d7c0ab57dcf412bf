// Package fieldbus owns the Modbus TCP connection lifecycle: one persistent
// session for cyclic reads and independent short-lived connections for
// one-shot register writes.
package fieldbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"npsh-guard/internal/metrics"
)

// ConnectionState describes the persistent session. Exactly one instance,
// mutated only by the Manager.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Config carries the externally configured endpoint parameters.
type Config struct {
	Endpoint   string
	UnitID     uint8
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Manager maintains the persistent session with a fixed-delay reconnect loop
// (no backoff, unbounded retries) and performs transactional writes on
// connections of their own, so a write can succeed while the session is down.
type Manager struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Set

	state atomic.Int32

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client

	faultCh chan struct{}
}

// NewManager validates config and prepares a disconnected manager; Run
// establishes the session.
func NewManager(cfg Config, logger zerolog.Logger, m *metrics.Set) (*Manager, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("fieldbus: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger.With().Str("component", "fieldbus").Str("endpoint", cfg.Endpoint).Logger(),
		metrics: m,
		faultCh: make(chan struct{}, 1),
	}, nil
}

// State returns the current persistent-session state.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Run owns the session lifecycle until ctx is cancelled: connect, stay
// connected until a transport fault is reported, then close, wait the fixed
// retry delay, and connect again.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setState(Disconnected)

	for {
		m.setState(Connecting)

		handler := m.newHandler()
		if err := handler.Connect(); err != nil {
			m.setState(Faulted)
			if m.metrics != nil {
				m.metrics.TransportErrors.Inc()
			}
			m.logger.Warn().Err(err).Dur("retry_in", m.cfg.RetryDelay).Msg("connect failed")
			if err := m.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		m.mu.Lock()
		m.handler = handler
		m.client = modbus.NewClient(handler)
		m.mu.Unlock()

		m.setState(Connected)
		if m.metrics != nil {
			m.metrics.Reconnects.Inc()
		}
		m.logger.Info().Msg("session connected")

		select {
		case <-ctx.Done():
			m.teardown()
			return ctx.Err()
		case <-m.faultCh:
		}

		m.setState(Faulted)
		m.teardown()
		m.logger.Warn().Dur("retry_in", m.cfg.RetryDelay).Msg("session faulted, reconnecting")

		if err := m.sleep(ctx); err != nil {
			return err
		}
	}
}

// ReadRegisters performs one holding-register read on the persistent session.
// Point-in-time: no implicit retry; the acquisition loop retries on its next
// tick. A transport failure faults the session.
func (m *Manager) ReadRegisters(address, quantity uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil || m.State() != Connected {
		return nil, &TransportError{Op: "read registers", Err: fmt.Errorf("session %s", m.State())}
	}

	raw, err := m.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		err = classify("read registers", err)
		if _, ok := err.(*TransportError); ok {
			m.fault()
		}
		return nil, err
	}

	if len(raw) != int(quantity)*2 {
		return nil, &ProtocolError{
			Op:  "read registers",
			Err: fmt.Errorf("payload length %d, want %d", len(raw), quantity*2),
		}
	}

	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return regs, nil
}

// WriteRegister performs exactly one register write on a short-lived
// connection of its own, independent of the persistent session's state.
// No retry: the caller decides what a failed write means.
func (m *Manager) WriteRegister(address, value uint16) error {
	handler := m.newHandler()
	if err := handler.Connect(); err != nil {
		if m.metrics != nil {
			m.metrics.TransportErrors.Inc()
		}
		return &TransportError{Op: "write register", Err: err}
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	if _, err := client.WriteSingleRegister(address, value); err != nil {
		err = classify("write register", err)
		if _, ok := err.(*TransportError); ok && m.metrics != nil {
			m.metrics.TransportErrors.Inc()
		}
		return err
	}
	return nil
}

// StopPump writes the stop command into the pump control register. Used by
// both the operator stop and the monitor's protective stop.
func (m *Manager) StopPump(context.Context) error {
	return m.WriteRegister(RegPumpControl, PumpStop)
}

// StartPump writes the start command into the pump control register.
func (m *Manager) StartPump(context.Context) error {
	return m.WriteRegister(RegPumpControl, PumpStart)
}

func (m *Manager) newHandler() *modbus.TCPClientHandler {
	handler := modbus.NewTCPClientHandler(m.cfg.Endpoint)
	handler.Timeout = m.cfg.Timeout
	handler.SlaveId = byte(m.cfg.UnitID)
	return handler
}

func (m *Manager) fault() {
	if m.metrics != nil {
		m.metrics.TransportErrors.Inc()
	}
	select {
	case m.faultCh <- struct{}{}:
	default:
	}
}

func (m *Manager) teardown() {
	m.mu.Lock()
	if m.handler != nil {
		_ = m.handler.Close()
	}
	m.handler = nil
	m.client = nil
	m.mu.Unlock()
}

func (m *Manager) setState(s ConnectionState) {
	m.state.Store(int32(s))
	if m.metrics != nil {
		if s == Connected {
			m.metrics.Connected.Set(1)
		} else {
			m.metrics.Connected.Set(0)
		}
	}
}

func (m *Manager) sleep(ctx context.Context) error {
	timer := time.NewTimer(m.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
