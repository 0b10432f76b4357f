package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens the UART at path with the given options and applies the
// read timeout. go.bug.st/serial reports an expired timeout as a zero-length
// read, which the framer treats as "no new data".
func OpenPort(path string, opts PortOptions) (serial.Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout()); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// RealPortFactory implements SerialPortFactory using go.bug.st/serial.
type RealPortFactory struct{}

// Open opens a real serial port.
func (RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	return OpenPort(path, opts)
}
