package testutil

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// fatalRecorder captures Fatal calls instead of stopping the test.
type fatalRecorder struct {
	testing.TB
	failed bool
	msg    string
}

func (r *fatalRecorder) Helper() {}

func (r *fatalRecorder) Fatal(args ...interface{}) {
	r.failed = true
	r.msg = fmt.Sprint(args...)
}

func (r *fatalRecorder) Fatalf(format string, args ...interface{}) {
	r.failed = true
	r.msg = fmt.Sprintf(format, args...)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	rec := &fatalRecorder{}
	AssertNoError(rec, nil)
	if rec.failed {
		t.Errorf("nil error reported as failure: %s", rec.msg)
	}

	rec = &fatalRecorder{}
	AssertNoError(rec, errors.New("boom"))
	if !rec.failed {
		t.Fatal("non-nil error not reported")
	}
	if rec.msg != "unexpected error: boom" {
		t.Errorf("message = %q, want %q", rec.msg, "unexpected error: boom")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	rec := &fatalRecorder{}
	AssertError(rec, errors.New("expected"))
	if rec.failed {
		t.Errorf("non-nil error reported as failure: %s", rec.msg)
	}

	rec = &fatalRecorder{}
	AssertError(rec, nil)
	if !rec.failed {
		t.Fatal("nil error not reported")
	}
}

func TestListenPortPair(t *testing.T) {
	pair := ListenPortPair(t)

	for i, conn := range pair.Conns {
		port := conn.LocalAddr().(*net.UDPAddr).Port
		if port != pair.BasePort+i {
			t.Errorf("conn %d bound to port %d, want %d", i, port, pair.BasePort+i)
		}
	}
}

func TestReceive(t *testing.T) {
	pair := ListenPortPair(t)

	sender, err := net.DialUDP("udp", nil, pair.Conns[1].LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer sender.Close()

	for _, msg := range []string{"one", "two"} {
		if _, err := sender.Write([]byte(msg)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	got := Receive(t, pair.Conns[1], 3, 200*time.Millisecond)
	if len(got) != 2 {
		t.Fatalf("received %d datagrams, want 2", len(got))
	}
	if string(got[0]) != "one" || string(got[1]) != "two" {
		t.Errorf("received %q, want [one two]", got)
	}
}
