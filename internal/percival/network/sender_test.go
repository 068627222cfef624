package network

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/frame-producer/internal/percival"
	"github.com/banshee-data/frame-producer/internal/testutil"
)

func TestNewUDPSender_DialsImageAndResetPorts(t *testing.T) {
	dialer := NewMockUDPDialer()
	sender, err := NewUDPSender(UDPSenderConfig{
		Destinations: []percival.Destination{
			{Host: "127.0.0.1", BasePort: 61649},
			{Host: "127.0.0.2", BasePort: 7000},
		},
		WriteBuffer: 1 << 20,
		Dialer:      dialer,
	})
	require.NoError(t, err)
	defer sender.Close()

	assert.Equal(t, []string{"127.0.0.1:61649", "127.0.0.1:61650", "127.0.0.2:7000", "127.0.0.2:7001"}, dialer.DialCalls)
	assert.Len(t, sender.Endpoints(), 4)
	for _, conn := range dialer.Conns {
		assert.Equal(t, 1<<20, conn.WriteBufferSize)
	}
}

func TestNewUDPSender_DuplicateEndpointsShareSocket(t *testing.T) {
	dialer := NewMockUDPDialer()
	sender, err := NewUDPSender(UDPSenderConfig{
		Destinations: []percival.Destination{
			{Host: "127.0.0.1", BasePort: 5000},
			{Host: "127.0.0.1", BasePort: 5001},
		},
		Dialer: dialer,
	})
	require.NoError(t, err)
	defer sender.Close()

	// 5001 is both the first destination's reset port and the second's image port.
	assert.Len(t, dialer.DialCalls, 3)
}

func TestNewUDPSender_Errors(t *testing.T) {
	t.Run("no destinations", func(t *testing.T) {
		_, err := NewUDPSender(UDPSenderConfig{Dialer: NewMockUDPDialer()})
		assert.ErrorIs(t, err, percival.ErrConfiguration)
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := NewUDPSender(UDPSenderConfig{
			Destinations: []percival.Destination{{Host: "127.0.0.1", BasePort: 65535}},
			Dialer:       NewMockUDPDialer(),
		})
		assert.ErrorIs(t, err, percival.ErrConfiguration)
	})

	t.Run("dial failure closes opened sockets", func(t *testing.T) {
		dialer := NewMockUDPDialer()
		dialer.FailAddr = "127.0.0.1:9001"
		_, err := NewUDPSender(UDPSenderConfig{
			Destinations: []percival.Destination{{Host: "127.0.0.1", BasePort: 9000}},
			Dialer:       dialer,
		})
		require.ErrorIs(t, err, percival.ErrTransport)
		require.Contains(t, dialer.Conns, "127.0.0.1:9000")
		assert.True(t, dialer.Conns["127.0.0.1:9000"].Closed)
	})
}

func TestUDPSender_Send(t *testing.T) {
	dialer := NewMockUDPDialer()
	dest := percival.Destination{Host: "127.0.0.1", BasePort: 4000}
	sender, err := NewUDPSender(UDPSenderConfig{Destinations: []percival.Destination{dest}, Dialer: dialer})
	require.NoError(t, err)

	n, err := sender.Send(dest.Endpoint(percival.PacketReset), []byte("reset"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, [][]byte{[]byte("reset")}, dialer.Conns["127.0.0.1:4001"].Writes)
	assert.Empty(t, dialer.Conns["127.0.0.1:4000"].Writes)

	_, err = sender.Send(percival.Endpoint{Host: "127.0.0.1", Port: 1}, []byte("x"))
	assert.ErrorIs(t, err, percival.ErrTransport)

	writeErr := errors.New("network unreachable")
	dialer.Conns["127.0.0.1:4000"].WriteError = writeErr
	_, err = sender.Send(dest.Endpoint(percival.PacketImage), []byte("image"))
	assert.ErrorIs(t, err, percival.ErrTransport)
	assert.ErrorIs(t, err, writeErr)

	require.NoError(t, sender.Close())
	for _, conn := range dialer.Conns {
		assert.True(t, conn.Closed)
	}
}

func TestUDPSender_ReportsTransportCount(t *testing.T) {
	dialer := NewMockUDPDialer()
	dest := percival.Destination{Host: "127.0.0.1", BasePort: 4000}
	sender, err := NewUDPSender(UDPSenderConfig{Destinations: []percival.Destination{dest}, Dialer: dialer})
	require.NoError(t, err)
	defer sender.Close()

	dialer.Conns["127.0.0.1:4000"].ShortWrite = 3
	n, err := sender.Send(dest.Endpoint(percival.PacketImage), []byte("truncated"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUDPSender_Loopback(t *testing.T) {
	pair := testutil.ListenPortPair(t)
	dest := percival.Destination{Host: "127.0.0.1", BasePort: pair.BasePort}

	sender, err := NewUDPSender(UDPSenderConfig{Destinations: []percival.Destination{dest}})
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Send(dest.Endpoint(percival.PacketImage), []byte("image"))
	require.NoError(t, err)
	_, err = sender.Send(dest.Endpoint(percival.PacketReset), []byte("reset"))
	require.NoError(t, err)

	image := testutil.Receive(t, pair.Conns[0], 1, time.Second)
	reset := testutil.Receive(t, pair.Conns[1], 1, time.Second)
	require.Len(t, image, 1)
	require.Len(t, reset, 1)
	assert.Equal(t, "image", string(image[0]))
	assert.Equal(t, "reset", string(reset[0]))
}

type recordingSender struct {
	sent  []string
	count int
	err   error
}

func (r *recordingSender) Send(ep percival.Endpoint, datagram []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.sent = append(r.sent, ep.String()+" "+string(datagram))
	if r.count > 0 {
		return r.count, nil
	}
	return len(datagram), nil
}

func TestTee(t *testing.T) {
	primary := &recordingSender{count: 7}
	secondary := &recordingSender{count: 1}
	tee := Tee{primary, secondary}

	ep := percival.Endpoint{Host: "10.0.0.1", Port: 61649}
	n, err := tee.Send(ep, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []string{"10.0.0.1:61649 payload"}, primary.sent)
	assert.Equal(t, primary.sent, secondary.sent)

	secondary.err = &net.OpError{Op: "write", Err: errors.New("boom")}
	_, err = tee.Send(ep, []byte("again"))
	assert.Error(t, err)
}
