package fieldbus

import (
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// TransportError is a socket-level failure (dial, timeout, broken pipe).
// Recovered locally by the reconnection policy and surfaced as ConnectionState.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fieldbus transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected response (exception code, bad
// payload geometry). It indicates a firmware/register-map mismatch and is
// surfaced, never retried.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fieldbus protocol: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// classify maps a goburrow client error into the transport/protocol taxonomy.
// A ModbusError is a well-formed exception response from the device; anything
// else came from the socket.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &ProtocolError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}
