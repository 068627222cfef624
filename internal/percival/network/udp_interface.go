package network

import (
	"net"
	"sync"
)

// UDPConn defines the connected-socket operations the sender needs.
// This abstraction enables unit testing without real network connections.
type UDPConn interface {
	// Write sends one datagram to the connected peer.
	Write(b []byte) (int, error)

	// SetWriteBuffer sets the size of the operating system's send buffer.
	SetWriteBuffer(bytes int) error

	// RemoteAddr returns the connected peer address.
	RemoteAddr() net.Addr

	// Close closes the socket.
	Close() error
}

// UDPDialer defines an interface for creating connected UDP sockets.
type UDPDialer interface {
	DialUDP(network string, raddr *net.UDPAddr) (UDPConn, error)
}

// RealUDPDialer implements UDPDialer using net.DialUDP.
type RealUDPDialer struct{}

// DialUDP opens a UDP socket connected to raddr.
func (RealUDPDialer) DialUDP(network string, raddr *net.UDPAddr) (UDPConn, error) {
	conn, err := net.DialUDP(network, nil, raddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPConn implements UDPConn for testing.
type MockUDPConn struct {
	mu sync.Mutex
	// Writes holds a copy of every datagram passed to Write.
	Writes [][]byte
	// WriteError is returned by Write if set.
	WriteError error
	// ShortWrite, when positive, caps the count Write reports.
	ShortWrite int
	// WriteBufferSize holds the value set by SetWriteBuffer.
	WriteBufferSize int
	// Closed indicates whether Close was called.
	Closed bool
	Remote *net.UDPAddr
}

// Write records the datagram.
func (m *MockUDPConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Writes = append(m.Writes, append([]byte(nil), b...))
	if m.ShortWrite > 0 && m.ShortWrite < len(b) {
		return m.ShortWrite, nil
	}
	return len(b), nil
}

// SetWriteBuffer records the buffer size.
func (m *MockUDPConn) SetWriteBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteBufferSize = bytes
	return nil
}

// RemoteAddr returns the address the mock was dialled with.
func (m *MockUDPConn) RemoteAddr() net.Addr { return m.Remote }

// Close marks the connection as closed.
func (m *MockUDPConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// MockUDPDialer implements UDPDialer for testing. It hands out one
// MockUDPConn per dialled address.
type MockUDPDialer struct {
	// Error is returned by DialUDP if set.
	Error error
	// FailAddr makes DialUDP fail only for this address.
	FailAddr string
	// Conns maps "ip:port" to the connection dialled for it.
	Conns map[string]*MockUDPConn
	// DialCalls records the address of every DialUDP call.
	DialCalls []string
}

// NewMockUDPDialer creates an empty MockUDPDialer.
func NewMockUDPDialer() *MockUDPDialer {
	return &MockUDPDialer{Conns: make(map[string]*MockUDPConn)}
}

// DialUDP returns a new mock connection for raddr.
func (d *MockUDPDialer) DialUDP(network string, raddr *net.UDPAddr) (UDPConn, error) {
	key := raddr.String()
	d.DialCalls = append(d.DialCalls, key)
	if d.Error != nil {
		return nil, d.Error
	}
	if d.FailAddr != "" && d.FailAddr == key {
		return nil, &net.OpError{Op: "dial", Net: network, Addr: raddr, Err: net.UnknownNetworkError("mock")}
	}
	conn := &MockUDPConn{Remote: raddr}
	d.Conns[key] = conn
	return conn, nil
}
