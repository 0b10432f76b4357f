package serialmux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dora-sat/flight/internal/timeutil"
)

func seq(start byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

func newTestFramer(port *TestableSerialPort) (*Framer[*TestableSerialPort], *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	f := NewFramer(NewChannel(port))
	f.Clock = clock
	return f, clock
}

func TestFramer_ReadFullChunkThenShort(t *testing.T) {
	first := seq(0, MaxRead)
	tail := []byte{0xF0, 0xF1}
	port := NewTestableSerialPort(ReadStep{Data: first}, ReadStep{Data: tail})
	f, clock := newTestFramer(port)

	msg, err := f.Read()
	require.NoError(t, err)

	want := append(append([]byte(nil), first...), tail...)
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, msg, 50)
	assert.Empty(t, clock.Sleeps())
}

func TestFramer_ReadShortChunkEndsMessage(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{Data: []byte{0xAA}}, ReadStep{Data: []byte{0xBB}})
	f, _ := newTestFramer(port)

	msg, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, msg)

	msg, err = f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB}, msg)
}

func TestFramer_ReadFlushesOnTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout ReadStep
	}{
		{name: "zero read", timeout: ReadStep{}},
		{name: "timeout error", timeout: ReadStep{Err: TimeoutError{}}},
		{name: "deadline exceeded", timeout: ReadStep{Err: os.ErrDeadlineExceeded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := seq(1, MaxRead)
			port := NewTestableSerialPort(ReadStep{Data: data}, tt.timeout)
			f, clock := newTestFramer(port)

			msg, err := f.Read()
			require.NoError(t, err)
			assert.Equal(t, data, msg)
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestFramer_ReadExactMultipleMergesUntilPause(t *testing.T) {
	// Two back-to-back 48-byte messages are indistinguishable from one 96-byte
	// message.
	port := NewTestableSerialPort(ReadStep{Data: seq(0, 2*MaxRead)}, ReadStep{})
	f, _ := newTestFramer(port)

	msg, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(0, 2*MaxRead), msg)
}

func TestFramer_ReadBacksOffWithChannelReleased(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{}, ReadStep{Err: TimeoutError{}}, ReadStep{Data: []byte{1, 2, 3}})
	f, clock := newTestFramer(port)

	var heldDuringSleep int
	clock.OnSleep = func(time.Duration) {
		acquired := make(chan struct{})
		go func() {
			h, err := f.Channel().Acquire()
			if err == nil {
				h.Release()
			}
			close(acquired)
		}()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			heldDuringSleep++
		}
	}

	msg, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, msg)
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff}, clock.Sleeps())
	assert.Zero(t, heldDuringSleep, "channel was held during backoff")
	assert.Equal(t, uint64(2), f.Stats().IdleBackoffs)
}

func TestFramer_ReadCustomBackoffAndChunk(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{}, ReadStep{Data: seq(0, 10)})
	f, clock := newTestFramer(port)
	f.MaxRead = 4
	f.Backoff = 25 * time.Millisecond

	msg, err := f.Read()
	require.NoError(t, err)
	// 4 + 4 + 2: the final short chunk ends the message.
	assert.Equal(t, seq(0, 10), msg)
	assert.Equal(t, []time.Duration{25 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, 4, port.Reads())
}

func TestFramer_ReadHardError(t *testing.T) {
	tests := []struct {
		name  string
		steps []ReadStep
	}{
		{name: "immediate", steps: []ReadStep{{Err: errors.New("framing error")}}},
		{name: "after partial data", steps: []ReadStep{{Data: seq(0, MaxRead)}, {Err: io.ErrUnexpectedEOF}}},
		{name: "after idle", steps: []ReadStep{{}, {Err: io.EOF}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestableSerialPort(tt.steps...)
			f, _ := newTestFramer(port)

			msg, err := f.Read()
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, ErrTransportRead)
			assert.False(t, f.Channel().Poisoned())
		})
	}
}

func TestFramer_ReadReturnsEachMessageOnce(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{Data: []byte{0xAA}})
	port.ReadLatency = time.Millisecond
	f := NewFramer(NewChannel(port))
	f.Backoff = time.Millisecond

	msg, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, msg)

	result := make(chan error, 1)
	go func() {
		msg, err := f.Read()
		if err == nil {
			t.Errorf("unexpected second message %x", msg)
		}
		result <- err
	}()

	select {
	case err := <-result:
		t.Fatalf("second Read returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, f.Channel().Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrChannelUnavailable)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestFramer_Write(t *testing.T) {
	port := NewTestableSerialPort()
	f, _ := newTestFramer(port)

	require.NoError(t, f.Write([]byte{0x01, 0x02, 0x03}))
	assert.Equal(t, [][]byte{{0x01, 0x02, 0x03}}, port.WriteLog())

	stats := f.Stats()
	assert.Equal(t, uint64(1), stats.MessagesWritten)
	assert.Equal(t, uint64(3), stats.BytesWritten)
}

func TestFramer_WriteErrors(t *testing.T) {
	t.Run("medium error", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.WriteError = errors.New("line fault")
		f, _ := newTestFramer(port)

		err := f.Write([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrTransportWrite)
		assert.Contains(t, err.Error(), "line fault")
		assert.Zero(t, f.Stats().MessagesWritten)
	})

	t.Run("short write", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.ShortWrite = 2
		f, _ := newTestFramer(port)

		err := f.Write([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrTransportWrite)
		assert.Contains(t, err.Error(), "wrote 2 of 3 bytes")
	})

	t.Run("no retry", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.WriteError = errors.New("line fault")
		f, _ := newTestFramer(port)

		require.Error(t, f.Write([]byte{1}))
		assert.Equal(t, 1, port.WriteCalls)
	})

	t.Run("closed channel", func(t *testing.T) {
		port := NewTestableSerialPort()
		f, _ := newTestFramer(port)
		require.NoError(t, f.Channel().Close())

		err := f.Write([]byte{1})
		assert.ErrorIs(t, err, ErrChannelUnavailable)
	})
}

func TestFramer_ConcurrentWritesDoNotInterleave(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteLatency = 5 * time.Millisecond
	f, _ := newTestFramer(port)

	var wg sync.WaitGroup
	for _, msg := range [][]byte{{1, 2, 3}, {4, 5, 6}} {
		wg.Add(1)
		go func(msg []byte) {
			defer wg.Done()
			if err := f.Write(msg); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		}(msg)
	}
	wg.Wait()

	got := port.WrittenData()
	ok := bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) || bytes.Equal(got, []byte{4, 5, 6, 1, 2, 3})
	assert.True(t, ok, "interleaved writes: %v", got)
	assert.False(t, port.Overlapped())
}

func TestFramer_WritersProgressWhileReaderIdles(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadLatency = 2 * time.Millisecond
	f := NewFramer(NewChannel(port))
	f.Backoff = time.Millisecond

	readDone := make(chan error, 1)
	go func() {
		_, err := f.Read()
		readDone <- err
	}()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.Write([]byte{byte(i), byte(i), byte(i)}); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		}(i)
	}

	writesDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(writesDone)
	}()
	select {
	case <-writesDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writers starved by idle reader")
	}

	for _, w := range port.WriteLog() {
		require.Len(t, w, 3)
		assert.Equal(t, w[0], w[1])
		assert.Equal(t, w[1], w[2])
	}
	assert.Len(t, port.WriteLog(), writers)
	assert.False(t, port.Overlapped())

	require.NoError(t, f.Channel().Close())
	select {
	case err := <-readDone:
		assert.ErrorIs(t, err, ErrChannelUnavailable)
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after Close")
	}
}

type panicPort struct{ TestableSerialPort }

func (*panicPort) Write([]byte) (int, error) { panic("driver bug") }

func TestFramer_PanicPoisonsForReaderAndWriters(t *testing.T) {
	port := &panicPort{}
	f := NewFramer(NewChannel(port))

	assert.Panics(t, func() { _ = f.Write([]byte{1}) })
	assert.True(t, f.Channel().Poisoned())

	_, err := f.Read()
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.ErrorIs(t, f.Write([]byte{2}), ErrChannelUnavailable)
}

func TestFramer_StatsCountMessages(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{Data: []byte{1, 2}}, ReadStep{Data: []byte{3}})
	f, _ := newTestFramer(port)

	for i := 0; i < 2; i++ {
		_, err := f.Read()
		require.NoError(t, err)
	}
	require.NoError(t, f.Write([]byte{9, 9}))

	want := FramerStats{MessagesRead: 2, BytesRead: 3, MessagesWritten: 1, BytesWritten: 2}
	if diff := cmp.Diff(want, f.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(TimeoutError{}))
	assert.True(t, isTimeout(os.ErrDeadlineExceeded))
	assert.True(t, isTimeout(&os.PathError{Op: "read", Path: "/dev/ttyS0", Err: os.ErrDeadlineExceeded}))
	assert.False(t, isTimeout(io.EOF))
	assert.False(t, isTimeout(errors.New("parity error")))
}
