package session

import (
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/fastybird-io/gotuya/transport"
)

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession(t *testing.T, onConnection ConnectionEvent) (*Session, *fakeClock, net.Listener) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	endpoint := transport.NewForAddr(ln.Addr().String(), time.Second, 20*time.Millisecond)
	s := NewWithEndpoint(endpoint, logr.Discard(), onConnection)

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	s.now = clock.now

	return s, clock, ln
}

// TestSequenceNumbersStrictlyIncrease is property 6 from spec.md §8.
func TestSequenceNumbersStrictlyIncrease(t *testing.T) {
	s, _, ln := newTestSession(t, nil)
	_ = ln

	var prev uint32
	for i := 0; i < 10; i++ {
		seq := s.NextSequence()
		if seq <= prev {
			t.Fatalf("NextSequence() = %d, want strictly greater than %d", seq, prev)
		}
		prev = seq
	}
}

// TestIsStaleTiming is property 7 from spec.md §8: not stale at the
// heartbeat interval alone, stale once the grace period also elapses.
func TestIsStaleTiming(t *testing.T) {
	s, clock, ln := newTestSession(t, nil)
	_ = ln

	s.lastMsgRecv = clock.now()

	clock.advance(HeartbeatInterval)
	if s.IsStale() {
		t.Fatalf("IsStale() = true at exactly the heartbeat interval, want false")
	}

	clock.advance(ConnectionStaleGrace + time.Second)
	if !s.IsStale() {
		t.Fatalf("IsStale() = false past heartbeat interval + stale grace, want true")
	}
}

// TestStartConnectsAndFiresCallback covers the Idle -> Connected transition
// and the on_connection(true) callback from spec.md §6.
func TestStartConnectsAndFiresCallback(t *testing.T) {
	s, _, ln := newTestSession(t, nil)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	var gotEvents []bool
	s.onConnection = func(connected bool) { gotEvents = append(gotEvents, connected) }

	s.Start()

	if s.State() != Connected {
		t.Fatalf("State() = %v, want Connected", s.State())
	}
	if !s.IsConnected() {
		t.Fatal("IsConnected() = false after Start")
	}
	if len(gotEvents) != 1 || gotEvents[0] != true {
		t.Fatalf("onConnection events = %v, want [true]", gotEvents)
	}

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(time.Second):
		t.Fatal("server never saw the connection")
	}
}

// TestTickHeartbeatThenStaleReconnect is scenario S4 from spec.md §8: past
// the heartbeat interval a heartbeat fires, and once the connection goes
// fully stale the session tears itself down, passes through
// ReconnectPending, and (since nothing has reconnected yet this run, the
// cool-down has already elapsed) lands back on Idle with
// on_connection(false) fired.
func TestTickHeartbeatThenStaleReconnect(t *testing.T) {
	s, clock, ln := newTestSession(t, nil)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never replies, so the session has nothing to mark received and
		// goes stale on schedule.
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	var events []bool
	s.onConnection = func(connected bool) { events = append(events, connected) }

	s.Start()
	if s.State() != Connected {
		t.Fatalf("State() = %v, want Connected", s.State())
	}

	var heartbeats int
	s.heartbeatSender = func() error {
		heartbeats++
		return nil
	}

	// Just past the heartbeat interval: a heartbeat should be sent, but the
	// connection is not yet stale.
	clock.advance(HeartbeatInterval + time.Second)
	s.Tick()
	if s.State() != Connected {
		t.Fatalf("State() = %v after one tick past heartbeat interval, want Connected", s.State())
	}
	if heartbeats != 1 {
		t.Fatalf("heartbeats sent = %d, want 1", heartbeats)
	}

	// Well past heartbeat interval + stale grace: the next Tick observes
	// the staleness and requests a teardown; the Tick after that carries
	// the session through ReconnectPending and back to Idle.
	clock.advance(HeartbeatInterval + ConnectionStaleGrace + time.Second)
	s.Tick()
	if s.State() != Connected {
		t.Fatalf("State() = %v on the tick that detects staleness, want still Connected until the next tick", s.State())
	}

	s.Tick()
	if s.State() != Idle {
		t.Fatalf("State() = %v after the teardown tick, want Idle", s.State())
	}
	if s.ReconnectCount() != 1 {
		t.Fatalf("ReconnectCount() = %d, want 1", s.ReconnectCount())
	}
	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Fatalf("onConnection events = %v, want [true false]", events)
	}
}

// TestReconnectCoolDownBlocksImmediateRetry covers the cool-down on a
// second reconnect cycle, where lastReconnect already holds a real
// timestamp from the first cycle instead of its zero value.
func TestReconnectCoolDownBlocksImmediateRetry(t *testing.T) {
	s, clock, ln := newTestSession(t, nil)
	_ = ln

	s.state = ReconnectPending
	s.lastReconnect = clock.now()

	s.Tick()
	if s.State() != ReconnectPending {
		t.Fatalf("State() = %v inside the cool-down window, want ReconnectPending", s.State())
	}

	clock.advance(ReconnectCoolDown + time.Second)
	s.Tick()
	if s.State() != Idle {
		t.Fatalf("State() = %v past the cool-down window, want Idle", s.State())
	}
}

// TestFrameHandlerSkipsUndersizedFragment covers the "bytes arrive outside
// an active request/response round trip" path Tick's read loop dispatches
// through: a lone prefix sentinel is dropped by wire.Split and never
// reaches the frame handler.
func TestFrameHandlerSkipsUndersizedFragment(t *testing.T) {
	s, _, ln := newTestSession(t, nil)

	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			serverConn <- conn
		}
	}()

	s.Start()

	conn := <-serverConn
	defer conn.Close()

	frame := []byte{0x00, 0x00, 0x55, 0xAA}
	_, _ = conn.Write(frame) // a genuinely valid frame is not required here:
	// tickConnected must hand whatever wire.Split recovers to the handler
	// without crashing on a short/invalid fragment it silently drops.

	received := make(chan []byte, 1)
	s.SetFrameHandler(func(f []byte) { received <- f })

	s.Tick()

	select {
	case <-received:
		t.Fatal("frame handler fired for an undersized fragment, want it dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
