package mocap

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens sockets for a Listener.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// NetFactory opens real sockets with net.ListenUDP.
type NetFactory struct{}

func (NetFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockDatagram is one datagram served by a MockSocket.
type MockDatagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockSocket serves a fixed list of datagrams and then reports read
// timeouts forever, like an idle socket.
type MockSocket struct {
	mu        sync.Mutex
	datagrams []MockDatagram
	next      int
	closed    bool
	readBuf   int
	// ReadErr, when set, is returned once by the next read.
	ReadErr error
}

func NewMockSocket(datagrams ...MockDatagram) *MockSocket {
	return &MockSocket{datagrams: datagrams}
}

func (m *MockSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadErr != nil {
		err := m.ReadErr
		m.ReadErr = nil
		return 0, nil, err
	}
	if m.next >= len(m.datagrams) {
		// Keep the caller's poll loop from spinning hot.
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	d := m.datagrams[m.next]
	m.next++
	return copy(b, d.Data), d.Addr, nil
}

func (m *MockSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	m.readBuf = bytes
	m.mu.Unlock()
	return nil
}

func (m *MockSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockSocket) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}
}

// Closed reports whether Close was called.
func (m *MockSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Remaining is the number of datagrams not yet read.
func (m *MockSocket) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.datagrams) - m.next
}

// MockFactory hands out a single prepared socket.
type MockFactory struct {
	Socket *MockSocket
	Err    error
}

func (f MockFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
