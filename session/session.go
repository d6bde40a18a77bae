// Package session drives the per-device connection state machine: dialing,
// heartbeat liveness, stale detection, and deferred reconnect with a
// cool-down, exactly as spec.md §4.E describes. It owns sequence number
// allocation; matching replies to requests is done by client, and
// everything about what bytes to send or how to interpret what comes back
// belongs to proto and wire.
package session

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/fastybird-io/gotuya/transport"
	"github.com/fastybird-io/gotuya/wire"
)

// State is one of the three connection states from spec.md §4.E.
type State int

const (
	Idle State = iota
	Connected
	ReconnectPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connected:
		return "CONNECTED"
	case ReconnectPending:
		return "RECONNECT_PENDING"
	default:
		return "UNKNOWN"
	}
}

// Timing constants fixed by the protocol (spec.md §6).
const (
	HeartbeatInterval    = 7 * time.Second
	ConnectionStaleGrace = 7 * time.Second
	ReconnectCoolDown    = 5 * time.Second
)

// ConnectionEvent fires once per transition into Connected and once per
// transition from ReconnectPending back into Idle, mirroring
// on_connection(bool) in spec.md §6. Implementations must not call back
// into the same session from within this callback (spec.md §5).
type ConnectionEvent func(connected bool)

// Clock abstracts time.Now for deterministic tests of the heartbeat/stale
// timers (scenario S4 in spec.md §8).
type Clock func() time.Time

// Session owns one device's TCP endpoint and the state machine around it.
// It is not safe for concurrent use — the owning driver is the only caller,
// per spec.md §5.
type Session struct {
	ID xid.ID

	endpoint *transport.Endpoint
	log      logr.Logger
	now      Clock

	onConnection    ConnectionEvent
	frameHandler    FrameHandler
	heartbeatSender HeartbeatSender

	state          State
	forceReconnect bool
	lastMsgRecv    time.Time
	lastReconnect  time.Time
	nextSeq        uint32
	reconnectCount int
	heartbeatsSent int
}

// New constructs a Session bound to the given IP. The session starts Idle;
// the first Tick call attempts the initial connection.
func New(ip string, log logr.Logger, onConnection ConnectionEvent) *Session {
	return NewWithEndpoint(transport.New(ip, 0, 0), log, onConnection)
}

// NewWithEndpoint builds a Session around a caller-supplied Endpoint
// instead of dialing the fixed device port — the seam transport.NewForAddr
// exists for, so tests (in this package or a coordinator package above it)
// can point a Session at a loopback listener.
func NewWithEndpoint(endpoint *transport.Endpoint, log logr.Logger, onConnection ConnectionEvent) *Session {
	return &Session{
		ID:           xid.New(),
		endpoint:     endpoint,
		log:          log,
		now:          time.Now,
		onConnection: onConnection,
		state:        Idle,
	}
}

// State reports the session's current state.
func (s *Session) State() State { return s.state }

// IsConnected mirrors is_connected() from spec.md §1's external-collaborator
// surface: true only while the TCP endpoint is open.
func (s *Session) IsConnected() bool { return s.state == Connected }

// NextSequence allocates the next strictly increasing sequence number for
// this connection epoch (spec.md §3's invariant; whether it resets across a
// reconnect is an explicit Open Question this module answers "no" to — see
// DESIGN.md).
func (s *Session) NextSequence() uint32 {
	s.nextSeq++
	return s.nextSeq
}

// CurrentSequence reports the last sequence number NextSequence allocated,
// without allocating another one — the read-only counterpart the metrics
// collector uses, since NextSequence itself has the side effect of
// advancing the counter.
func (s *Session) CurrentSequence() uint32 { return s.nextSeq }

// Endpoint exposes the underlying transport for the coordinator to send
// frames and read raw bytes through — the thin seam spec.md §4.F's
// coordinator sits on top of.
func (s *Session) Endpoint() *transport.Endpoint { return s.endpoint }

// markReceived updates the liveness clock; called on every successfully
// parsed frame, solicited or not (spec.md §4.E).
func (s *Session) markReceived() {
	s.lastMsgRecv = s.now()
}

// MarkAlive lets a caller reading the socket directly — outside Tick's own
// read loop, as the request/response coordinator does during
// ReadStates/WriteStates — report that traffic arrived, so heartbeat and
// stale-detection timers see it the same as a frame Tick read itself.
func (s *Session) MarkAlive() {
	s.markReceived()
}

// Start attempts to open the connection if idle. Failures are logged and
// leave the session Idle, to be retried on the next Tick — mirroring
// start()/__connect() in the original client.
func (s *Session) Start() {
	if s.state != Idle {
		return
	}
	_ = s.connect()
}

// Connect dials immediately if the session is not already connected,
// bypassing the reconnect cool-down entirely. The request/response
// coordinator calls this directly before a read or write, the same way the
// reference client's read_states()/write_states() call __connect()
// regardless of what state Tick's background machine thinks it is in.
func (s *Session) Connect() error {
	if s.IsConnected() {
		return nil
	}
	return s.connect()
}

func (s *Session) connect() error {
	if err := s.endpoint.Dial(); err != nil {
		s.log.V(1).Info("connect failed", "session", s.ID, "error", err.Error())
		return err
	}

	s.state = Connected
	s.lastMsgRecv = s.now()
	s.forceReconnect = false

	if s.onConnection != nil {
		s.onConnection(true)
	}
	return nil
}

// Stop closes the socket unconditionally. Any in-flight read/write surfaces
// as a failure on its next syscall, per spec.md §5's cancellation model.
func (s *Session) Stop() {
	s.endpoint.Close()
	s.state = Idle
}

// Tick is the single entry point the outer scheduler calls repeatedly
// (spec.md §5's "handle()"). It drives reconnect cool-down, heartbeats, and
// stale detection. It must never block longer than the endpoint's read
// slice plus a heartbeat send.
func (s *Session) Tick() {
	if s.forceReconnect {
		s.forceReconnect = false
		s.enterReconnectPending()
	}

	switch s.state {
	case Idle:
		_ = s.connect()
	case ReconnectPending:
		s.tickReconnect()
	case Connected:
		s.tickConnected()
	}
}

func (s *Session) enterReconnectPending() {
	s.state = ReconnectPending
}

func (s *Session) tickReconnect() {
	now := s.now()
	if now.Sub(s.lastReconnect) < ReconnectCoolDown {
		return
	}
	s.lastReconnect = now

	s.endpoint.Close()
	s.state = Idle
	s.reconnectCount++

	if s.onConnection != nil {
		s.onConnection(false)
	}
}

// tickConnected performs the one bounded read a Tick is allowed (spec.md
// §5): a zero-byte, no-error read means "nothing arrived within the read
// slice", any other error (including a peer-closed EOF) means the
// connection is gone and must be torn down.
func (s *Session) tickConnected() {
	buf := make([]byte, 4096)
	n, err := s.endpoint.Read(buf)
	if err != nil {
		s.log.V(1).Info("read error", "session", s.ID, "error", err.Error())
		s.forceReconnect = true
		return
	}

	for _, frame := range wire.Split(buf[:n]) {
		s.markReceived()
		s.onRawFrame(frame)
	}

	s.checkHeartbeat()
}

// onRawFrame dispatches every validated frame seen outside an active
// ReadStates/WriteStates round trip to the coordinator's handler, so
// unsolicited STATUS pushes and HEART_BEAT replies are not silently
// dropped just because no request is in flight.
func (s *Session) onRawFrame(frame []byte) {
	if s.frameHandler != nil {
		s.frameHandler(frame)
	}
}

// FrameHandler receives every validated frame the session reads, including
// ones arriving outside an active ReadStates/WriteStates call.
type FrameHandler func(frame []byte)

// SetFrameHandler installs the coordinator's frame dispatcher.
func (s *Session) SetFrameHandler(h FrameHandler) {
	s.frameHandler = h
}

func (s *Session) checkHeartbeat() {
	now := s.now()
	sinceRecv := now.Sub(s.lastMsgRecv)

	if sinceRecv > HeartbeatInterval {
		if err := s.sendHeartbeat(); err != nil {
			s.log.V(1).Info("heartbeat send failed", "session", s.ID, "error", err.Error())
			s.forceReconnect = true
			return
		}
	}

	if sinceRecv > HeartbeatInterval+ConnectionStaleGrace {
		s.log.V(1).Info("connection stale", "session", s.ID)
		s.forceReconnect = true
	}
}

func (s *Session) sendHeartbeat() error {
	if s.heartbeatSender == nil {
		return nil
	}
	s.heartbeatsSent++
	return s.heartbeatSender()
}

// HeartbeatSender lets the coordinator install the actual HEART_BEAT frame
// send, since building that frame needs proto/wire which session does not
// import (session only knows when to fire, not how to encode).
type HeartbeatSender func() error

func (s *Session) SetHeartbeatSender(h HeartbeatSender) {
	s.heartbeatSender = h
}

// IsStale reports whether the connection should be considered dead even if
// the OS has not noticed — property 7 from spec.md §8.
func (s *Session) IsStale() bool {
	return s.now().Sub(s.lastMsgRecv) > HeartbeatInterval+ConnectionStaleGrace
}

// ReconnectCount returns how many times this session has torn down and
// rebuilt its socket; exposed for the metrics collector.
func (s *Session) ReconnectCount() int { return s.reconnectCount }

// HeartbeatsSent returns how many HEART_BEAT requests this session has
// issued; exposed for the metrics collector.
func (s *Session) HeartbeatsSent() int { return s.heartbeatsSent }
