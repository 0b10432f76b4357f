package serialmux

import (
	"sync"
	"time"
)

// DisabledPort stands in for the radio UART when the hardware is absent
// (--disable-radio). Reads wait out the read timeout and report no data,
// writes are accepted and discarded, so the service and its query surface
// can run on a bench machine. Close unblocks pending reads.
type DisabledPort struct {
	mu      sync.Mutex
	timeout time.Duration
	closed  bool
	done    chan struct{}
	written uint64
}

// NewDisabledPort returns a DisabledPort whose reads time out after timeout.
func NewDisabledPort(timeout time.Duration) *DisabledPort {
	if timeout <= 0 {
		timeout = time.Duration(DefaultReadTimeoutMS) * time.Millisecond
	}
	return &DisabledPort{timeout: timeout, done: make(chan struct{})}
}

// Read waits for the read timeout and returns (0, nil).
func (d *DisabledPort) Read(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrPortClosed
	}
	timeout, done := d.timeout, d.done
	d.mu.Unlock()

	select {
	case <-time.After(timeout):
		return 0, nil
	case <-done:
		return 0, ErrPortClosed
	}
}

// Write discards p.
func (d *DisabledPort) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrPortClosed
	}
	d.written += uint64(len(p))
	return len(p), nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (d *DisabledPort) SetReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
	return nil
}

// Discarded returns the number of bytes written and dropped.
func (d *DisabledPort) Discarded() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Close unblocks pending reads. Calling it more than once is a no-op.
func (d *DisabledPort) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.done)
	return nil
}
