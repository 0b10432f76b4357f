package comms

import (
	"fmt"
	"sync"
)

// Direction identifies which way a message travelled over the radio link.
type Direction string

const (
	// Uplink is ground to satellite: messages read from the radio.
	Uplink Direction = "uplink"
	// Downlink is satellite to ground: messages written to the radio.
	Downlink Direction = "downlink"
)

// DefaultMaxErrors bounds the number of error strings kept in Telemetry.
const DefaultMaxErrors = 50

// Telemetry holds the link counters. It has its own lock, independent of the
// serial channel, so queries never wait on radio I/O.
type Telemetry struct {
	mu sync.Mutex

	packetsUp         uint64
	packetsDown       uint64
	failedPacketsUp   uint64
	failedPacketsDown uint64
	errors            []string
	maxErrors         int
}

// TelemetrySnapshot is a consistent copy of every counter.
type TelemetrySnapshot struct {
	PacketsUp         uint64   `json:"packets_up"`
	PacketsDown       uint64   `json:"packets_down"`
	FailedPacketsUp   uint64   `json:"failed_packets_up"`
	FailedPacketsDown uint64   `json:"failed_packets_down"`
	Errors            []string `json:"errors"`
}

// NewTelemetry returns empty counters keeping at most maxErrors error
// strings. A non-positive maxErrors means DefaultMaxErrors.
func NewTelemetry(maxErrors int) *Telemetry {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Telemetry{maxErrors: maxErrors, errors: []string{}}
}

// RecordUplink counts one message received from the radio.
func (t *Telemetry) RecordUplink() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packetsUp++
}

// RecordDownlink counts one message sent to the radio.
func (t *Telemetry) RecordDownlink() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packetsDown++
}

// RecordFailure counts a failed transfer in the given direction and keeps
// err in the error list, dropping the oldest entry when full.
func (t *Telemetry) RecordFailure(dir Direction, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch dir {
	case Uplink:
		t.failedPacketsUp++
	case Downlink:
		t.failedPacketsDown++
	}
	if err == nil {
		return
	}
	t.errors = append(t.errors, fmt.Sprintf("%s: %v", dir, err))
	if over := len(t.errors) - t.maxErrors; over > 0 {
		t.errors = append(t.errors[:0:0], t.errors[over:]...)
	}
}

func (t *Telemetry) PacketsUp() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packetsUp
}

func (t *Telemetry) PacketsDown() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packetsDown
}

func (t *Telemetry) FailedPacketsUp() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedPacketsUp
}

func (t *Telemetry) FailedPacketsDown() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedPacketsDown
}

// Errors returns a copy of the recorded errors, oldest first.
func (t *Telemetry) Errors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.errors...)
}

// Snapshot returns all counters taken under a single lock.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TelemetrySnapshot{
		PacketsUp:         t.packetsUp,
		PacketsDown:       t.packetsDown,
		FailedPacketsUp:   t.failedPacketsUp,
		FailedPacketsDown: t.failedPacketsDown,
		Errors:            append([]string{}, t.errors...),
	}
}
