// Package transport owns the single TCP socket toward a Tuya device: dial,
// TCP_NODELAY, timeouts, and a deadline-bounded read used as Go's idiomatic
// substitute for the non-blocking select() readiness probe the original
// client performs (spec.md §4.D).
package transport

import (
	"fmt"
	"net"
	"time"
)

// DevicePort is the fixed TCP port every Tuya device listens for local
// control connections on.
const DevicePort = 6668

// Default timing, per spec.md §6.
const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultReadSlice      = 3500 * time.Millisecond // half the stale-connection grace period
)

// Endpoint owns one TCP connection to a device. It is not safe for
// concurrent use: spec.md §5 assigns the session that owns an Endpoint as
// its sole caller.
type Endpoint struct {
	addr           string
	connectTimeout time.Duration
	readSlice      time.Duration

	conn net.Conn
}

// New constructs an Endpoint for ip:6668. connectTimeout and readSlice fall
// back to the protocol defaults when zero.
func New(ip string, connectTimeout, readSlice time.Duration) *Endpoint {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readSlice <= 0 {
		readSlice = DefaultReadSlice
	}
	return &Endpoint{
		addr:           fmt.Sprintf("%s:%d", ip, DevicePort),
		connectTimeout: connectTimeout,
		readSlice:      readSlice,
	}
}

// NewForAddr builds an Endpoint against an arbitrary host:port instead of
// the fixed device port. New always targets ip:6668 since that is the only
// port a real device listens on; tests that need a loopback listener on an
// ephemeral port construct an Endpoint this way instead.
func NewForAddr(addr string, connectTimeout, readSlice time.Duration) *Endpoint {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readSlice <= 0 {
		readSlice = DefaultReadSlice
	}
	return &Endpoint{
		addr:           addr,
		connectTimeout: connectTimeout,
		readSlice:      readSlice,
	}
}

// Connected reports whether the endpoint currently owns an open socket.
func (e *Endpoint) Connected() bool {
	return e.conn != nil
}

// Dial opens the TCP connection and enables TCP_NODELAY, since the device
// framing depends on small writes not being coalesced by Nagle's algorithm
// delaying a reply the caller is about to block on.
func (e *Endpoint) Dial() error {
	if e.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: e.connectTimeout}
	conn, err := dialer.Dial("tcp", e.addr)
	if err != nil {
		return err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			_ = conn.Close()
			return err
		}
	}

	e.conn = conn
	return nil
}

// Close attempts an orderly shutdown and releases the socket. Failures are
// swallowed, per spec.md §4.D: a close that errors still leaves the
// endpoint with no connection, and there is nothing further a caller can do
// about a socket already on its way out.
func (e *Endpoint) Close() {
	if e.conn == nil {
		return
	}
	_ = e.conn.Close()
	e.conn = nil
}

// Send writes a frame in full. Go's net.Conn.Write already blocks until the
// full buffer is written or an error occurs, so no explicit retry loop is
// needed the way the original client's single send() call assumed.
func (e *Endpoint) Send(frame []byte) error {
	if e.conn == nil {
		return net.ErrClosed
	}
	_, err := e.conn.Write(frame)
	return err
}

// Read waits up to the endpoint's read slice for data, returning whatever
// bytes arrived. A deadline expiry with no data returns (0, nil), so the
// caller can distinguish "nothing yet" from "connection gone"; a peer close
// (io.EOF) or any other failure is returned as an error, which the caller
// treats as a disconnect.
func (e *Endpoint) Read(buf []byte) (int, error) {
	if e.conn == nil {
		return 0, net.ErrClosed
	}

	if err := e.conn.SetReadDeadline(time.Now().Add(e.readSlice)); err != nil {
		return 0, err
	}

	n, err := e.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
