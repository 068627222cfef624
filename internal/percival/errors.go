package percival

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports invalid geometry, run parameters or destinations.
	ErrConfiguration = errors.New("configuration error")
	// ErrEncoding reports a header field that does not fit its wire width.
	ErrEncoding = errors.New("encoding error")
	// ErrTransport reports socket creation or send failures.
	ErrTransport = errors.New("transport error")
)

// TransmitError describes a failure while transmitting a specific packet.
// It unwraps to both its kind (ErrEncoding or ErrTransport) and the cause.
type TransmitError struct {
	Kind     error
	Frame    int
	Type     PacketType
	Subframe int
	Packet   int
	Endpoint string
	Err      error
}

func (e *TransmitError) Error() string {
	msg := fmt.Sprintf("%v: frame %d %s subframe %d packet %d", e.Kind, e.Frame, e.Type, e.Subframe, e.Packet)
	if e.Endpoint != "" {
		msg += " to " + e.Endpoint
	}
	return msg + ": " + e.Err.Error()
}

func (e *TransmitError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
