// Package testutil provides shared test utilities and fixtures.
//
// The helpers here stand up loopback UDP receivers so that transmitter and
// sender tests can observe real datagrams.
package testutil

import (
	"net"
	"testing"
	"time"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// PortPair is a pair of loopback UDP sockets bound to consecutive ports,
// matching a destination's image and reset ports.
type PortPair struct {
	BasePort int
	Conns    [2]*net.UDPConn
}

// ListenPortPair binds two consecutive loopback UDP ports. Both sockets are
// closed when the test ends.
func ListenPortPair(t *testing.T) *PortPair {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		first, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		base := first.LocalAddr().(*net.UDPAddr).Port
		second, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: base + 1})
		if err != nil {
			first.Close()
			continue
		}
		for _, c := range []*net.UDPConn{first, second} {
			_ = c.SetReadBuffer(4 << 20)
		}
		t.Cleanup(func() {
			first.Close()
			second.Close()
		})
		return &PortPair{BasePort: base, Conns: [2]*net.UDPConn{first, second}}
	}
	t.Fatal("could not bind two consecutive UDP ports")
	return nil
}

// Receive reads up to n datagrams from conn, stopping early when nothing
// arrives within timeout.
func Receive(t *testing.T, conn *net.UDPConn, n int, timeout time.Duration) [][]byte {
	t.Helper()
	var out [][]byte
	buf := make([]byte, 65536)
	for len(out) < n {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			t.Fatalf("failed to set read deadline: %v", err)
		}
		m, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return out
			}
			t.Fatalf("read failed: %v", err)
		}
		out = append(out, append([]byte(nil), buf[:m]...))
	}
	return out
}
