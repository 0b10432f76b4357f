package serialmux

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPortClosed is returned by the test and disabled ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// TimeoutError is the error a port returns when a read times out without
// data. It satisfies the Timeout() convention used by os and net errors.
type TimeoutError struct{}

func (TimeoutError) Error() string   { return "serial read timeout" }
func (TimeoutError) Timeout() bool   { return true }
func (TimeoutError) Temporary() bool { return true }

// ReadStep is one scripted outcome for TestableSerialPort.Read. Data is
// delivered across as many reads as needed to drain it; Err is returned once
// Data is exhausted (or immediately if Data is empty).
type ReadStep struct {
	Data []byte
	Err  error
}

// TestableSerialPort implements TimeoutSerialPorter with scripted reads and
// recorded writes. Once the script is exhausted reads behave like
// go.bug.st/serial on an idle line: (0, nil) after ReadLatency.
type TestableSerialPort struct {
	mu sync.Mutex

	script []ReadStep

	// Writes records every successful Write call's bytes.
	Writes [][]byte

	// ReadLatency adds a delay to each Read call that finds no scripted data.
	ReadLatency time.Duration

	// WriteLatency adds a delay to each Write call.
	WriteLatency time.Duration

	// WriteError is returned by the next Write call if set.
	WriteError error

	// ShortWrite, when positive, caps the number of bytes the next Write accepts.
	ShortWrite int

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// WriteCalls records the number of Write calls.
	WriteCalls int

	// ReadTimeout is the current read timeout.
	ReadTimeout time.Duration

	// OnRead, if set, runs at the start of every Read with the call number
	// (1-based).
	OnRead func(call int)

	active  atomic.Int32
	overlap atomic.Bool
}

// NewTestableSerialPort creates a new TestableSerialPort with the given read script.
func NewTestableSerialPort(steps ...ReadStep) *TestableSerialPort {
	return &TestableSerialPort{script: steps}
}

func (t *TestableSerialPort) enter() {
	if t.active.Add(1) > 1 {
		t.overlap.Store(true)
	}
}

func (t *TestableSerialPort) exit() {
	t.active.Add(-1)
}

// Overlapped reports whether two port operations ever ran concurrently.
func (t *TestableSerialPort) Overlapped() bool {
	return t.overlap.Load()
}

// Read returns the next scripted chunk, splitting it to fit p.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.enter()
	defer t.exit()

	t.mu.Lock()
	t.ReadCalls++
	call := t.ReadCalls
	hook := t.OnRead
	t.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrPortClosed
	}

	if len(t.script) == 0 {
		if t.ReadLatency > 0 {
			t.mu.Unlock()
			time.Sleep(t.ReadLatency)
			t.mu.Lock()
		}
		return 0, nil
	}

	step := &t.script[0]
	if len(step.Data) > 0 {
		n := copy(p, step.Data)
		step.Data = step.Data[n:]
		if len(step.Data) == 0 && step.Err == nil {
			t.script = t.script[1:]
		}
		return n, nil
	}
	err := step.Err
	t.script = t.script[1:]
	return 0, err
}

// Write records p, optionally simulating latency, errors and short writes.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.enter()
	defer t.exit()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.WriteLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.WriteLatency)
		t.mu.Lock()
	}

	n := len(p)
	if t.ShortWrite > 0 && t.ShortWrite < n {
		n = t.ShortWrite
		t.ShortWrite = 0
	}
	t.Writes = append(t.Writes, append([]byte(nil), p[:n]...))
	return n, nil
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadSteps appends to the read script.
func (t *TestableSerialPort) AddReadSteps(steps ...ReadStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.script = append(t.script, steps...)
}

// WrittenData returns the concatenation of all writes.
func (t *TestableSerialPort) WrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []byte
	for _, w := range t.Writes {
		out = append(out, w...)
	}
	return out
}

// WriteLog returns a copy of the individual writes in arrival order.
func (t *TestableSerialPort) WriteLog() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, len(t.Writes))
	copy(out, t.Writes)
	return out
}

// Reads returns the number of Read calls so far.
func (t *TestableSerialPort) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadCalls
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})

	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
