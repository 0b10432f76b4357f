package serialmux

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dora-sat/flight/internal/monitoring"
	"github.com/dora-sat/flight/internal/timeutil"
)

const (
	// MaxRead is the largest chunk requested from the port in one read.
	MaxRead = 48
	// DefaultBackoff is how long the reader gives up the channel after an
	// attempt that produced nothing.
	DefaultBackoff = 10 * time.Millisecond
)

var (
	// ErrTransportRead reports a non-timeout failure of the medium during a read.
	ErrTransportRead = errors.New("radio read failed")
	// ErrTransportWrite reports a failed or partial write to the medium.
	ErrTransportWrite = errors.New("radio write failed")
)

// Framer implements message read/write over a Channel. The wire carries no
// framing, so Read infers message boundaries:
//
//   - a read returning fewer than MaxRead bytes ends the message;
//   - a read that times out (or returns nothing) flushes whatever has been
//     buffered so far.
//
// Both rules are lossy. A sender emitting exact multiples of MaxRead without
// pausing produces one merged message, and a sender pausing mid-message
// produces two.
type Framer[T SerialPorter] struct {
	ch *Channel[T]

	// MaxRead overrides the chunk size; zero means MaxRead.
	MaxRead int
	// Backoff overrides the idle sleep; zero means DefaultBackoff.
	Backoff time.Duration
	// Clock is used for the idle sleep; nil means the real clock.
	Clock timeutil.Clock

	messagesRead    atomic.Uint64
	bytesRead       atomic.Uint64
	messagesWritten atomic.Uint64
	bytesWritten    atomic.Uint64
	idleBackoffs    atomic.Uint64
}

// FramerStats is a point-in-time copy of the framer counters.
type FramerStats struct {
	MessagesRead    uint64 `json:"messages_read"`
	BytesRead       uint64 `json:"bytes_read"`
	MessagesWritten uint64 `json:"messages_written"`
	BytesWritten    uint64 `json:"bytes_written"`
	IdleBackoffs    uint64 `json:"idle_backoffs"`
}

// NewFramer creates a Framer over ch with the default chunk size and backoff.
func NewFramer[T SerialPorter](ch *Channel[T]) *Framer[T] {
	return &Framer[T]{ch: ch}
}

// Channel returns the underlying channel.
func (f *Framer[T]) Channel() *Channel[T] {
	return f.ch
}

func (f *Framer[T]) maxRead() int {
	if f.MaxRead > 0 {
		return f.MaxRead
	}
	return MaxRead
}

func (f *Framer[T]) backoff() time.Duration {
	if f.Backoff > 0 {
		return f.Backoff
	}
	return DefaultBackoff
}

func (f *Framer[T]) clock() timeutil.Clock {
	if f.Clock != nil {
		return f.Clock
	}
	return timeutil.RealClock{}
}

// Write sends msg to the radio in a single write while holding the channel.
// Errors are not retried here.
func (f *Framer[T]) Write(msg []byte) error {
	err := f.ch.With(func(port T) error {
		n, err := port.Write(msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportWrite, err)
		}
		if n < len(msg) {
			return fmt.Errorf("%w: wrote %d of %d bytes", ErrTransportWrite, n, len(msg))
		}
		return nil
	})
	if err != nil {
		return err
	}
	f.messagesWritten.Add(1)
	f.bytesWritten.Add(uint64(len(msg)))
	monitoring.Debugf("Wrote %d bytes to radio", len(msg))
	return nil
}

// Read blocks until one message has been assembled. Between attempts that
// produce nothing the channel is released and the reader sleeps, so writers
// waiting on the channel get a turn.
func (f *Framer[T]) Read() ([]byte, error) {
	var packet []byte
	buf := make([]byte, f.maxRead())

	for {
		done := false
		err := f.ch.With(func(port T) error {
			for {
				n, err := port.Read(buf)
				if n > 0 {
					packet = append(packet, buf[:n]...)
				}
				switch {
				case err != nil && !isTimeout(err):
					return fmt.Errorf("%w: %v", ErrTransportRead, err)
				case err == nil && n == len(buf):
					// Full chunk, more may follow immediately.
					continue
				case err == nil && n > 0:
					done = true
					return nil
				default:
					// Timed out or read nothing.
					done = len(packet) > 0
					return nil
				}
			}
		})
		if err != nil {
			return nil, err
		}
		if done {
			f.messagesRead.Add(1)
			f.bytesRead.Add(uint64(len(packet)))
			monitoring.Debugf("Read %d bytes from radio", len(packet))
			return packet, nil
		}

		f.idleBackoffs.Add(1)
		f.clock().Sleep(f.backoff())
	}
}

// Stats returns the current counters.
func (f *Framer[T]) Stats() FramerStats {
	return FramerStats{
		MessagesRead:    f.messagesRead.Load(),
		BytesRead:       f.bytesRead.Load(),
		MessagesWritten: f.messagesWritten.Load(),
		BytesWritten:    f.bytesWritten.Load(),
		IdleBackoffs:    f.idleBackoffs.Load(),
	}
}

// isTimeout reports whether err is an expired read timeout rather than a
// fault of the medium.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
