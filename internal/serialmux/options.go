package serialmux

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Radio UART defaults. The link runs 115200 8N1 without flow control and
// every primitive read is bounded by a 100ms timeout.
const (
	DefaultBaudRate      = 115200
	DefaultDataBits      = 8
	DefaultStopBits      = 1
	DefaultParity        = "N"
	DefaultFlowControl   = "none"
	DefaultReadTimeoutMS = 100
)

// PortOptions describes the serial connection parameters used when opening a real
// serial port. The field names mirror the [radio] table of the service
// configuration so values can be passed through without translation.
type PortOptions struct {
	BaudRate      int    `json:"baud_rate" toml:"baud_rate"`
	DataBits      int    `json:"data_bits" toml:"data_bits"`
	StopBits      int    `json:"stop_bits" toml:"stop_bits"`
	Parity        string `json:"parity" toml:"parity"`
	FlowControl   string `json:"flow_control" toml:"flow_control"`
	ReadTimeoutMS int    `json:"read_timeout_ms" toml:"read_timeout_ms"`
}

// DefaultPortOptions returns the fixed radio UART configuration.
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate:      DefaultBaudRate,
		DataBits:      DefaultDataBits,
		StopBits:      DefaultStopBits,
		Parity:        DefaultParity,
		FlowControl:   DefaultFlowControl,
		ReadTimeoutMS: DefaultReadTimeoutMS,
	}
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = DefaultDataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = DefaultStopBits
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = DefaultParity
	}
	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	flow := strings.TrimSpace(strings.ToLower(opts.FlowControl))
	if flow == "" {
		flow = DefaultFlowControl
	}
	if flow != "none" {
		return opts, fmt.Errorf("unsupported flow control %q: only none is supported", opts.FlowControl)
	}
	opts.FlowControl = flow

	if opts.ReadTimeoutMS == 0 {
		opts.ReadTimeoutMS = DefaultReadTimeoutMS
	}
	if opts.ReadTimeoutMS < 0 {
		return opts, fmt.Errorf("invalid read timeout %dms: must be positive", opts.ReadTimeoutMS)
	}

	return opts, nil
}

// Equal reports whether two PortOptions describe the same serial configuration.
func (o PortOptions) Equal(other PortOptions) bool {
	normalizedA, errA := o.Normalize()
	normalizedB, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return normalizedA == normalizedB
}

// ReadTimeout returns the per-read timeout as a duration.
func (o PortOptions) ReadTimeout() time.Duration {
	ms := o.ReadTimeoutMS
	if ms <= 0 {
		ms = DefaultReadTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// SerialMode converts the port options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}

// String renders the options in the conventional 115200/8N1 shorthand.
func (o PortOptions) String() string {
	opts, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("invalid(%v)", err)
	}
	return fmt.Sprintf("%d/%d%s%d flow=%s timeout=%dms",
		opts.BaudRate, opts.DataBits, opts.Parity, opts.StopBits, opts.FlowControl, opts.ReadTimeoutMS)
}
