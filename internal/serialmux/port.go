package serialmux

import (
	"io"
	"time"
)

// SerialPorter is what a Channel needs from the radio UART. Tests substitute
// TestableSerialPort; a missing radio is replaced by DisabledPort.
type SerialPorter interface {
	io.ReadWriteCloser
}

// TimeoutSerialPorter is a port whose reads give up after a set time. The
// framer's boundary inference assumes every port it reads from behaves so.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory opens the radio device. radio-service takes one so the
// startup path can run without hardware.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// SerialPortOpener adapts a plain function to SerialPortFactory.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

func (f SerialPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}
