package comms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dora-sat/flight/internal/monitoring"
)

const (
	// subscriberBuffer is the per-subscriber queue depth. Slow subscribers
	// miss messages rather than stall the reader.
	subscriberBuffer = 16
	// maxDatagram is the largest downlink datagram accepted.
	maxDatagram = 65535
	// downlinkPoll bounds each UDP read so endpoints notice cancellation.
	downlinkPoll = 100 * time.Millisecond
)

// MessageSink receives a copy of every message that crosses the link.
type MessageSink interface {
	RecordMessage(dir Direction, msg []byte) error
}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(dir Direction, msg []byte) error

// RecordMessage implements MessageSink.
func (f MessageSinkFunc) RecordMessage(dir Direction, msg []byte) error {
	return f(dir, msg)
}

// LinkObserver is told when the read loop starts and when it dies.
type LinkObserver interface {
	LinkStateChanged(up bool)
}

// Engine runs the read loop and downlink endpoints for one ControlBlock.
type Engine struct {
	cb    *ControlBlock
	telem *Telemetry

	// Sockets creates the downlink endpoint sockets; nil means real UDP.
	Sockets UDPSocketFactory
	// Sink, if set, is given every uplinked and downlinked message.
	Sink MessageSink
	// Observer, if set, is notified of link state changes.
	Observer LinkObserver

	subscriberMu sync.Mutex
	subscribers  map[string]chan []byte
	dropped      uint64
}

// NewEngine creates an engine. telem may be nil, in which case fresh
// counters sized from the control block config are used.
func NewEngine(cb *ControlBlock, telem *Telemetry) *Engine {
	if telem == nil {
		telem = NewTelemetry(cb.Config.MaxErrors)
	}
	return &Engine{
		cb:          cb,
		telem:       telem,
		subscribers: make(map[string]chan []byte),
	}
}

// Telemetry returns the engine's counters.
func (e *Engine) Telemetry() *Telemetry {
	return e.telem
}

// Subscribe returns an ID and a channel receiving every uplinked message.
func (e *Engine) Subscribe() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, subscriberBuffer)
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel.
func (e *Engine) Unsubscribe(id string) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// queue was full.
func (e *Engine) Dropped() uint64 {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	return e.dropped
}

func (e *Engine) publish(msg []byte) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- msg:
		default:
			e.dropped++
		}
	}
}

func (e *Engine) record(dir Direction, msg []byte) {
	if e.Sink == nil {
		return
	}
	if err := e.Sink.RecordMessage(dir, msg); err != nil {
		log.Printf("failed to record %s message: %v", dir, err)
	}
}

// Downlink passes msg to every write function. Each successful write counts
// as one packet down and each failure as one failed packet down; failures
// are returned joined. Nothing is retried.
func (e *Engine) Downlink(msg []byte) error {
	var errs []error
	sent := false
	for _, write := range e.cb.Writes {
		if err := write(msg); err != nil {
			e.telem.RecordFailure(Downlink, err)
			errs = append(errs, err)
			continue
		}
		e.telem.RecordDownlink()
		sent = true
	}
	if sent {
		e.record(Downlink, msg)
	}
	return errors.Join(errs...)
}

// Run starts the read loop and one endpoint per downlink port and blocks
// until ctx is cancelled or the read loop fails. A read failure is fatal:
// it is recorded and returned.
//
// The read loop cannot observe ctx while the read function blocks. On
// cancellation Run returns without waiting for it; the owner of the radio
// channel unblocks it by closing the channel.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	factory := e.Sockets
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}

	var wg sync.WaitGroup
	for _, port := range e.cb.Config.DownlinkPorts {
		addr := &net.UDPAddr{IP: net.ParseIP(e.cb.Config.DownlinkHost), Port: port}
		sock, err := factory.ListenUDP("udp", addr)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to listen on downlink port %d: %w", port, err)
		}
		log.Printf("Downlink endpoint listening on %s", sock.LocalAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.serveDownlink(ctx, sock)
		}()
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- e.readLoop(ctx)
	}()
	e.setLinkState(true)

	var err error
	select {
	case <-ctx.Done():
	case err = <-readErr:
		e.setLinkState(false)
	}

	cancel()
	wg.Wait()
	return err
}

func (e *Engine) setLinkState(up bool) {
	if e.Observer != nil {
		e.Observer.LinkStateChanged(up)
	}
}

func (e *Engine) readLoop(ctx context.Context) error {
	for {
		msg, err := e.cb.Read()
		if err != nil {
			if ctx.Err() != nil {
				// Shutting down; the channel was closed under us.
				return nil
			}
			e.telem.RecordFailure(Uplink, err)
			return fmt.Errorf("radio read loop: %w", err)
		}
		e.telem.RecordUplink()
		monitoring.Debugf("Uplinked %d bytes", len(msg))
		e.record(Uplink, msg)
		e.publish(msg)
	}
}

// serveDownlink reads datagrams from sock and downlinks each one until ctx
// is done.
func (e *Engine) serveDownlink(ctx context.Context, sock UDPSocket) {
	defer sock.Close()

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Set read deadline to allow checking context cancellation
		sock.SetReadDeadline(time.Now().Add(downlinkPoll))

		n, addr, err := sock.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Downlink endpoint read error: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		msg := append([]byte(nil), buffer[:n]...)
		if err := e.Downlink(msg); err != nil {
			log.Printf("Failed to downlink %d bytes from %v: %v", n, addr, err)
		}
	}
}
