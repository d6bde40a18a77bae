// Package discovery listens for Tuya LAN broadcast announcements: a UDP
// datagram on port 6667, encrypted under the protocol's one fixed,
// well-known key rather than any per-device local key. It mirrors
// DiscoveryClient in the reference implementation, adapted from a
// recvfrom-and-print loop into a listener a caller drives with Tick and
// drains through a channel (spec.md §4.G).
package discovery

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/fastybird-io/gotuya/cipher"
)

// errDatagramTooShort is returned by decode when a datagram is too small to
// contain the fixed 20-byte header and 8-byte trailer decode strips before
// decryption even begins.
var errDatagramTooShort = errors.New("discovery: datagram too short")

// BindAddress and Port are fixed by the protocol, not configuration — the
// same reasoning spec.md §4.G gives for modeling them as constants rather
// than fields a caller can override.
const (
	BindAddress = "0.0.0.0"
	Port        = 6667
)

// RecvTimeout bounds how long a single Tick call's read may block, per
// spec.md §6.
const RecvTimeout = 3 * time.Second

// datagramBufferSize is larger than any discovery broadcast actually seen on
// the wire; oversized reads are truncated by recvfrom semantics, not an
// error, so generous headroom costs nothing.
const datagramBufferSize = 4048

// announcementNamespace seeds the synthetic id uuid.NewSHA1 derives for
// announcements whose JSON carries no stable identifier of its own.
var announcementNamespace = uuid.MustParse("b17526a4-1b83-4e6b-9f6b-5b1f9b9b9f6b")

// Announcement is one decoded broadcast: a device advertising itself on the
// local network. DeviceID is the synthesized id when the payload carries
// none, so repeated broadcasts from the same device coalesce under a
// consumer's de-dup logic instead of arriving as unrelated records.
type Announcement struct {
	DeviceID   string
	IP         string
	ProductKey string
	Version    string
}

// announcementPayload is the decrypted JSON shape a device broadcasts. Field
// names follow the reference client's discovery payload; GwID is the
// device's own stable identifier when it bothers to report one.
type announcementPayload struct {
	IP         string `json:"ip"`
	GwID       string `json:"gwId"`
	ProductKey string `json:"productKey"`
	Version    string `json:"version"`
}

// Listener binds the broadcast socket and decodes announcements as they
// arrive, delivering each to Announcements. It is not safe for concurrent
// use: like transport.Endpoint and session.Session, a single owner calls
// Start/Tick/Stop (spec.md §5).
type Listener struct {
	log           logr.Logger
	announcements chan<- Announcement

	conn *net.UDPConn
}

// New builds a Listener that delivers decoded announcements to sink. sink's
// shape is left to the integrator by spec.md §9; a channel is chosen here
// because it composes with a caller's own select loop without imposing a
// callback re-entrancy contract.
func New(log logr.Logger, sink chan<- Announcement) *Listener {
	return &Listener{log: log, announcements: sink}
}

// Start opens the broadcast socket. A failure here is logged and left for
// the caller to retry by calling Start again, the same "create, log, leave
// for later" shape __create_client uses.
func (l *Listener) Start() error {
	if l.conn != nil {
		return nil
	}

	addr := &net.UDPAddr{IP: net.ParseIP(BindAddress), Port: Port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		l.log.Error(err, "discovery socket could not be created")
		return err
	}

	if err := conn.SetReadBuffer(datagramBufferSize); err != nil {
		l.log.V(1).Info("discovery socket: SetReadBuffer failed", "error", err.Error())
	}

	l.conn = conn
	return nil
}

// IsConnected mirrors is_connected(): true only while the socket is open.
func (l *Listener) IsConnected() bool { return l.conn != nil }

// Stop closes the socket. Per spec.md §4.D a close error leaves nothing
// further to do, so it is logged rather than returned.
func (l *Listener) Stop() {
	if l.conn == nil {
		return
	}
	if err := l.conn.Close(); err != nil {
		l.log.V(1).Info("discovery socket close failed", "error", err.Error())
	}
	l.conn = nil
}

// Tick performs the single bounded read a caller's scheduler loop is allowed
// per invocation (spec.md §5): it waits up to RecvTimeout for one datagram,
// and on success decodes and delivers it. A timeout with nothing received is
// not an error; Tick simply returns, to be called again. Decrypt or parse
// failures are logged and the datagram dropped, exactly as handle()'s
// broad except does.
func (l *Listener) Tick() {
	if l.conn == nil {
		return
	}

	if err := l.conn.SetReadDeadline(time.Now().Add(RecvTimeout)); err != nil {
		l.log.V(1).Info("discovery socket: SetReadDeadline failed", "error", err.Error())
		return
	}

	buf := make([]byte, datagramBufferSize)
	n, from, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		l.log.Error(err, "error receiving UDP discovery datagram")
		return
	}

	announcement, err := decode(buf[:n])
	if err != nil {
		l.log.V(1).Info("dropping undecodable discovery datagram", "from", from.String(), "error", err.Error())
		return
	}

	if l.announcements != nil {
		l.announcements <- announcement
	}
}

// decode base64-decodes datagram[20:-8] and decrypts it (AES-ECB, PKCS#7)
// under the fixed discovery key, then parses the resulting JSON into an Announcement,
// synthesizing a stable DeviceID when the payload's own gwId is empty.
func decode(datagram []byte) (Announcement, error) {
	if len(datagram) < 28 {
		return Announcement{}, errDatagramTooShort
	}

	body := datagram[20 : len(datagram)-8]

	key := cipher.DiscoveryKey()
	plain, err := cipher.New(key).DecryptBase64(body)
	if err != nil {
		return Announcement{}, err
	}

	var payload announcementPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return Announcement{}, err
	}

	deviceID := payload.GwID
	if deviceID == "" {
		seed := payload.IP + "|" + payload.ProductKey
		deviceID = uuid.NewSHA1(announcementNamespace, []byte(seed)).String()
	}

	return Announcement{
		DeviceID:   deviceID,
		IP:         payload.IP,
		ProductKey: payload.ProductKey,
		Version:    payload.Version,
	}, nil
}
