package comms

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn a downlink endpoint reads through.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// UDPSocketFactory binds the downlink ports. The engine takes one so tests
// can run it without the network.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory binds real sockets with net.ListenUDP.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		// Avoid returning a typed nil inside the interface.
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket implements UDPSocket for testing. Packets may be queued while
// an endpoint is reading; an empty queue behaves like an expired deadline.
type MockUDPSocket struct {
	mu sync.Mutex

	packets      []MockUDPPacket
	closed       bool
	readDeadline time.Time
	readError    error

	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// IdleDelay is how long a read on an empty queue waits before timing out.
	IdleDelay time.Duration
}

// MockUDPPacket is one datagram queued on a MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket returns a socket on 127.0.0.1:8160 holding packets.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8160},
		IdleDelay:    time.Millisecond,
	}
}

// Enqueue adds packets to be returned by later reads.
func (m *MockUDPSocket) Enqueue(packets ...MockUDPPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, packets...)
}

// FailNextRead makes the next ReadFromUDP call return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readError = err
}

// ReadFromUDP pops the next queued packet, truncating it to b like a real
// datagram read.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	pkt, delay, err := m.next()
	if err != nil {
		return 0, nil, err
	}
	if pkt == nil {
		time.Sleep(delay)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	return copy(b, pkt.Data), pkt.Addr, nil
}

func (m *MockUDPSocket) next() (*MockUDPPacket, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return nil, 0, net.ErrClosed
	case m.readError != nil:
		err := m.readError
		m.readError = nil
		return nil, 0, err
	case len(m.packets) == 0:
		return nil, m.IdleDelay, nil
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]
	return &pkt, 0, nil
}

func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

// ReadDeadline returns the last deadline set.
func (m *MockUDPSocket) ReadDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readDeadline
}

// Close makes every later read fail with net.ErrClosed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockUDPSocketFactory hands out one socket per port, creating empty ones
// for ports it has not been given.
type MockUDPSocketFactory struct {
	mu sync.Mutex

	Sockets     map[int]*MockUDPSocket // by port
	Error       error                  // fails every ListenUDP when set
	ListenCalls []MockListenCall
}

// MockListenCall is one recorded ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory creates a factory returning the given sockets by port.
func NewMockUDPSocketFactory(sockets map[int]*MockUDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Sockets: sockets}
}

// ListenUDP returns the socket registered for laddr's port.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.Error != nil {
		return nil, f.Error
	}
	sock, ok := f.Sockets[laddr.Port]
	if !ok {
		sock = NewMockUDPSocket()
		if f.Sockets == nil {
			f.Sockets = make(map[int]*MockUDPSocket)
		}
		f.Sockets[laddr.Port] = sock
	}
	return sock, nil
}

// timeoutError is what an expired read deadline looks like.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
