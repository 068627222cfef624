package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/banshee-data/frame-producer/internal/monitoring"
	"github.com/banshee-data/frame-producer/internal/percival"
)

// UDPSenderConfig contains configuration options for the UDP sender.
type UDPSenderConfig struct {
	Destinations []percival.Destination
	// WriteBuffer sets SO_SNDBUF on every socket when positive.
	WriteBuffer int
	// Dialer defaults to RealUDPDialer.
	Dialer UDPDialer
}

// UDPSender owns one connected UDP socket per endpoint: the image and reset
// port of every destination.
type UDPSender struct {
	conns map[percival.Endpoint]UDPConn
	order []percival.Endpoint
}

// NewUDPSender resolves every destination endpoint and dials a socket for
// it. Unresolvable hosts are configuration errors; socket failures are
// transport errors. Nothing is left open on failure.
func NewUDPSender(config UDPSenderConfig) (*UDPSender, error) {
	if len(config.Destinations) == 0 {
		return nil, fmt.Errorf("%w: no destinations configured", percival.ErrConfiguration)
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = RealUDPDialer{}
	}

	s := &UDPSender{conns: make(map[percival.Endpoint]UDPConn)}
	for _, d := range config.Destinations {
		if err := d.Validate(); err != nil {
			s.Close()
			return nil, err
		}
		for _, t := range percival.PacketTypes {
			ep := d.Endpoint(t)
			if _, ok := s.conns[ep]; ok {
				continue
			}
			raddr, err := net.ResolveUDPAddr("udp", ep.String())
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("%w: failed to resolve %s: %w", percival.ErrConfiguration, ep, err)
			}
			conn, err := dialer.DialUDP("udp", raddr)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("%w: failed to create connection to %s: %w", percival.ErrTransport, ep, err)
			}
			if config.WriteBuffer > 0 {
				if err := conn.SetWriteBuffer(config.WriteBuffer); err != nil {
					monitoring.Logf("Failed to set write buffer for %s: %v", ep, err)
				}
			}
			s.conns[ep] = conn
			s.order = append(s.order, ep)
		}
	}
	monitoring.Logf("Sending packets to %d endpoints", len(s.order))
	return s, nil
}

// Endpoints returns the endpoints in the order their sockets were opened.
func (s *UDPSender) Endpoints() []percival.Endpoint {
	return append([]percival.Endpoint(nil), s.order...)
}

// Send writes datagram to ep's socket and returns the bytes the transport
// accepted. There is no retry.
func (s *UDPSender) Send(ep percival.Endpoint, datagram []byte) (int, error) {
	conn, ok := s.conns[ep]
	if !ok {
		return 0, fmt.Errorf("%w: no socket for %s", percival.ErrTransport, ep)
	}
	n, err := conn.Write(datagram)
	if err != nil {
		return n, fmt.Errorf("%w: send to %s: %w", percival.ErrTransport, ep, err)
	}
	return n, nil
}

// Close closes every socket.
func (s *UDPSender) Close() error {
	var errs []error
	for _, ep := range s.order {
		if err := s.conns[ep].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.conns = map[percival.Endpoint]UDPConn{}
	s.order = nil
	return errors.Join(errs...)
}

// Tee sends every datagram through each sender in turn and reports the count
// of the first. It stops at the first error.
type Tee []percival.Sender

// Send implements percival.Sender.
func (t Tee) Send(ep percival.Endpoint, datagram []byte) (int, error) {
	var n int
	for i, s := range t {
		m, err := s.Send(ep, datagram)
		if err != nil {
			return n, err
		}
		if i == 0 {
			n = m
		}
	}
	return n, nil
}
