// Package feeds acquires raw position fixes from the underlying transports
// (serial NMEA receivers, UDP fix streams, canned fixtures) and fans them out
// to fusion sessions through the Mux. The fusion core never touches a
// transport directly; it only sees fusion.Measurement values.
package feeds

import (
	"io"

	"go.bug.st/serial"
)

// Porter is the minimal interface a feed transport must provide. The
// abstraction keeps the Mux testable without real hardware or sockets.
type Porter interface {
	io.Reader
	io.Closer
}

// PortMode holds serial port configuration parameters.
type PortMode struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultPortMode returns the standard mode for NMEA 0183 GPS receivers.
func DefaultPortMode() *PortMode {
	return &PortMode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerialPort opens a real serial port at the given path.
func OpenSerialPort(path string, mode *PortMode) (Porter, error) {
	if mode == nil {
		mode = DefaultPortMode()
	}
	return serial.Open(path, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   mode.Parity,
		StopBits: mode.StopBits,
	})
}
