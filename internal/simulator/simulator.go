// Package simulator hosts a small Modbus TCP holding-register server that
// mimics the pump station PLC: function codes 3 and 6, a register table
// matching the firmware map, and a process model that follows the control
// register. Used for local development and transport-level tests.
package simulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"npsh-guard/internal/fieldbus"
)

const (
	fcReadHolding = 3
	fcWriteSingle = 6

	excIllegalFunction = 1
	excIllegalAddress  = 2
)

// tableSize covers the firmware register map with headroom.
const tableSize = 64

// Server is one simulated PLC instance.
type Server struct {
	logger zerolog.Logger

	mu   sync.Mutex
	regs [tableSize]uint16

	listener net.Listener
	addrCh   chan string
}

// New seeds the register table with a plausible cold-start image: pump off,
// water at 25 C, 3 bar suction pressure.
func New(logger zerolog.Logger) *Server {
	s := &Server{
		logger: logger.With().Str("component", "simulator").Logger(),
		addrCh: make(chan string, 1),
	}
	s.set(fieldbus.RegPumpControl, fieldbus.PumpStop)
	s.set(fieldbus.RegPumpStatus, 0)
	s.set(fieldbus.RegTemperature, 250)
	s.set(fieldbus.RegPressure, 300)
	s.set(fieldbus.RegFlow, 0)
	s.set(fieldbus.RegStaticHead, 20)
	s.set(fieldbus.RegFrictionLosses, 5)
	s.set(fieldbus.RegSuctionDiameter, 200)
	s.set(fieldbus.RegElevation, 10)
	return s
}

// Addr blocks until the listener is bound and returns its address. Useful
// when Run was given port 0.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-s.addrCh:
		// Put it back for a second caller.
		s.addrCh <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run serves Modbus TCP on listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("simulator listen: %w", err)
	}
	s.listener = ln
	s.addrCh <- ln.Addr().String()
	s.logger.Info().Str("listen", ln.Addr().String()).Msg("plc simulator listening")

	go s.runProcess(ctx)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

// runProcess advances the process image once a second: the status register
// follows the control register, and flow responds to the pump state.
func (s *Server) runProcess(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Server) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.regs[fieldbus.RegPumpControl] == fieldbus.PumpStart
	if running {
		s.regs[fieldbus.RegPumpStatus] = 1
		// 200 to 600 m3/h with small jitter, scaled by 10.
		flow := 2000 + rand.Intn(4000)
		s.regs[fieldbus.RegFlow] = uint16(flow)
		// Suction pressure sags a little under flow.
		s.regs[fieldbus.RegPressure] = uint16(280 + rand.Intn(30))
	} else {
		s.regs[fieldbus.RegPumpStatus] = 0
		s.regs[fieldbus.RegFlow] = 0
		s.regs[fieldbus.RegPressure] = uint16(295 + rand.Intn(10))
	}
	s.regs[fieldbus.RegTemperature] = uint16(245 + rand.Intn(10))
}

func (s *Server) set(addr, value uint16) {
	s.mu.Lock()
	s.regs[addr] = value
	s.mu.Unlock()
}

// SetRegister overrides one register, letting tests shape scenarios such as
// hot fluid or collapsing suction pressure.
func (s *Server) SetRegister(addr, value uint16) {
	if int(addr) >= tableSize {
		return
	}
	s.set(addr, value)
}

// Register reads one register from the table.
func (s *Server) Register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(addr) >= tableSize {
		return 0
	}
	return s.regs[addr]
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		// MBAP: TID(2) PID(2) LEN(2) UID(1), then PDU of LEN-1 bytes.
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		if length < 2 || length > 256 {
			return
		}
		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		resp := s.handlePDU(pdu)
		if _, err := conn.Write(frame(header, resp)); err != nil {
			return
		}
	}
}

// frame wraps a response PDU in an MBAP header echoing TID, PID, and UID.
func frame(reqHeader, pdu []byte) []byte {
	adu := make([]byte, 7+len(pdu))
	copy(adu[0:4], reqHeader[0:4])
	binary.BigEndian.PutUint16(adu[4:6], uint16(len(pdu)+1))
	adu[6] = reqHeader[6]
	copy(adu[7:], pdu)
	return adu
}

func (s *Server) handlePDU(pdu []byte) []byte {
	if len(pdu) < 1 {
		return nil
	}
	fc := pdu[0]
	switch fc {
	case fcReadHolding:
		return s.readHolding(pdu)
	case fcWriteSingle:
		return s.writeSingle(pdu)
	default:
		return exception(fc, excIllegalFunction)
	}
}

func (s *Server) readHolding(pdu []byte) []byte {
	if len(pdu) != 5 {
		return exception(fcReadHolding, excIllegalAddress)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	if qty == 0 || qty > 125 || int(addr)+int(qty) > tableSize {
		return exception(fcReadHolding, excIllegalAddress)
	}

	s.mu.Lock()
	values := make([]uint16, qty)
	copy(values, s.regs[addr:addr+qty])
	s.mu.Unlock()

	resp := make([]byte, 2+2*int(qty))
	resp[0] = fcReadHolding
	resp[1] = byte(2 * qty)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+2*i:], v)
	}
	return resp
}

func (s *Server) writeSingle(pdu []byte) []byte {
	if len(pdu) != 5 {
		return exception(fcWriteSingle, excIllegalAddress)
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])
	if int(addr) >= tableSize {
		return exception(fcWriteSingle, excIllegalAddress)
	}

	s.set(addr, value)
	if addr == fieldbus.RegPumpControl {
		// Status follows control immediately so a readback right after the
		// write already reflects the command.
		if value == fieldbus.PumpStart {
			s.set(fieldbus.RegPumpStatus, 1)
		} else {
			s.set(fieldbus.RegPumpStatus, 0)
			s.set(fieldbus.RegFlow, 0)
		}
		s.logger.Info().Uint16("value", value).Msg("pump control written")
	}

	// FC6 echoes the request on success.
	resp := make([]byte, 5)
	copy(resp, pdu)
	return resp
}

func exception(fc, code uint8) []byte {
	return []byte{fc | 0x80, code}
}
