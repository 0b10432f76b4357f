// Serialmux coordinates access to the radio's half-duplex UART. A single
// Channel owns the port; one reader goroutine and any number of writers
// take turns on it through the Framer, which also infers message boundaries
// from read sizes and timeouts since the link carries no length or delimiter.
package serialmux

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelUnavailable is returned when the channel can no longer hand out
// access to the port: a previous holder panicked while holding it, or the
// channel was closed. Callers must not keep touching the medium.
var ErrChannelUnavailable = errors.New("serial channel unavailable")

// Channel grants exclusive, scoped access to a single serial port. The mutex
// owns the port directly; only the holder of a Handle may touch it.
type Channel[T SerialPorter] struct {
	mu       sync.Mutex
	port     T
	poisoned bool
	closed   bool
}

// Handle is exclusive access to the port of a Channel. It belongs to the
// goroutine that acquired it and must be released before that goroutine
// blocks on anything other than the port itself.
type Handle[T SerialPorter] struct {
	ch       *Channel[T]
	released bool
}

// NewChannel wraps port. The channel takes ownership; Close closes the port.
func NewChannel[T SerialPorter](port T) *Channel[T] {
	return &Channel[T]{port: port}
}

// Acquire blocks until the channel is free and returns exclusive access.
func (c *Channel[T]) Acquire() (*Handle[T], error) {
	c.mu.Lock()
	if err := c.unavailableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return &Handle[T]{ch: c}, nil
}

func (c *Channel[T]) unavailableLocked() error {
	switch {
	case c.poisoned:
		return fmt.Errorf("%w: a previous holder panicked", ErrChannelUnavailable)
	case c.closed:
		return fmt.Errorf("%w: channel closed", ErrChannelUnavailable)
	}
	return nil
}

// With runs fn with exclusive access to the port and releases it afterwards.
// If fn panics the channel is poisoned before the panic continues, and every
// later acquisition fails with ErrChannelUnavailable.
func (c *Channel[T]) With(fn func(port T) error) error {
	h, err := c.Acquire()
	if err != nil {
		return err
	}
	completed := false
	defer func() {
		if !completed {
			c.poisoned = true
		}
		h.Release()
	}()
	err = fn(h.Port())
	completed = true
	return err
}

// Poisoned reports whether a holder panicked while holding the channel.
func (c *Channel[T]) Poisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

// Close marks the channel unavailable and closes the port. It waits for the
// current holder, if any, to release first.
func (c *Channel[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}

// Port returns the port. Only valid until Release.
func (h *Handle[T]) Port() T {
	return h.ch.port
}

// Release gives up access. Calling it more than once is a no-op.
func (h *Handle[T]) Release() {
	if h.released {
		return
	}
	h.released = true
	h.ch.mu.Unlock()
}
