// Package comms is the boundary between the radio driver and the rest of the
// flight software. The engine owns one reader that pulls messages off the
// radio and fans them out to subscribers, and forwards datagrams arriving on
// the downlink ports to every configured write function. It does not frame,
// acknowledge or retry.
package comms

import (
	"errors"
	"fmt"
)

// ReadFunc blocks until one message arrives from the radio.
type ReadFunc func() ([]byte, error)

// WriteFunc sends one message to the radio.
type WriteFunc func(msg []byte) error

// Config holds engine settings.
type Config struct {
	// DownlinkPorts are the local UDP ports accepting messages to downlink.
	DownlinkPorts []int `json:"downlink_ports" toml:"downlink_ports"`
	// DownlinkHost is the address the downlink ports bind to.
	DownlinkHost string `json:"downlink_host" toml:"downlink_host"`
	// MaxErrors bounds the telemetry error list.
	MaxErrors int `json:"max_errors" toml:"max_errors"`
}

// DefaultConfig returns a config with one downlink port on loopback.
func DefaultConfig() Config {
	return Config{
		DownlinkPorts: []int{8161},
		DownlinkHost:  "127.0.0.1",
		MaxErrors:     DefaultMaxErrors,
	}
}

// Validate checks port ranges and duplicates.
func (c Config) Validate() error {
	seen := make(map[int]bool, len(c.DownlinkPorts))
	for _, p := range c.DownlinkPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid downlink port %d", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate downlink port %d", p)
		}
		seen[p] = true
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max_errors must be non-negative, got %d", c.MaxErrors)
	}
	return nil
}

// ControlBlock bundles the radio's read and write functions with the engine
// configuration.
type ControlBlock struct {
	Read   ReadFunc
	Writes []WriteFunc
	Config Config
}

// NewControlBlock validates its inputs and returns a ControlBlock.
func NewControlBlock(read ReadFunc, writes []WriteFunc, cfg Config) (*ControlBlock, error) {
	if read == nil {
		return nil, errors.New("comms: read function is required")
	}
	if len(writes) == 0 {
		return nil, errors.New("comms: at least one write function is required")
	}
	for i, w := range writes {
		if w == nil {
			return nil, fmt.Errorf("comms: write function %d is nil", i)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("comms: %w", err)
	}
	return &ControlBlock{Read: read, Writes: writes, Config: cfg}, nil
}
