// Package client coordinates request/response traffic with a single Tuya
// device: building and sending a command frame, draining the socket for
// its reply, and falling back from DP_QUERY to CONTROL_NEW for devices that
// cannot answer the former in full. It sits directly on top of session and
// proto, the way DeviceClient sits on top of the raw socket and the
// payload templates in the reference implementation.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/fastybird-io/gotuya/proto"
	"github.com/fastybird-io/gotuya/session"
	"github.com/fastybird-io/gotuya/wire"
)

// StatusKind distinguishes a STATUS payload that arrived unsolicited (or in
// answer to a ReadStates call) from one folded out of a WriteStates round
// trip, mirroring DeviceStatusType in spec.md §4.F.
type StatusKind int

const (
	StatusKindStatus StatusKind = iota
	StatusKindCommand
)

func (k StatusKind) String() string {
	if k == StatusKindCommand {
		return "COMMAND"
	}
	return "STATUS"
}

// StatusHandler receives every decoded STATUS payload this device produces,
// whichever of the above kinds it was observed as.
type StatusHandler func(payload map[string]any, kind StatusKind)

// reply is one decoded frame pulled off the wire during a round trip.
type reply struct {
	command       proto.Command
	seq           uint32
	payload       []byte
	hasData       bool
	hasReturnCode bool
	returnCode    uint32
}

// Device coordinates one Tuya device's request/response traffic: framing
// via a Builder, delivery and liveness via a Session. It implements the
// read_states/write_states/write_state surface from spec.md §1.
type Device struct {
	Session *session.Session

	builder proto.Builder
	version proto.Version
	log     logr.Logger

	onStatus StatusHandler
}

// New wires a Device to a fresh Session for ip. The session's frame handler
// and heartbeat sender are installed so Tick's background machinery stays
// correct even between ReadStates/WriteStates calls.
func New(ip, deviceID, gatewayID, localKey string, version proto.Version, log logr.Logger, onStatus StatusHandler) *Device {
	d := &Device{
		builder:  proto.NewBuilder(deviceID, gatewayID, localKey),
		version:  version,
		log:      log,
		onStatus: onStatus,
	}
	d.Session = session.New(ip, log, nil)
	d.Session.SetFrameHandler(d.handleBackgroundFrame)
	d.Session.SetHeartbeatSender(d.sendHeartbeat)
	return d
}

// Endpoint is the narrow surface a scheduler integrates against: open the
// connection, drive it forward one tick at a time, tear it down, and ask
// whether it is currently up. spec.md §1 names this collaborator only
// externally (the scheduler itself is out of scope); *Device satisfies it
// so an integrator has a concrete type to depend on without this module
// having to build the scheduler too.
type Endpoint interface {
	Start()
	Handle()
	Stop()
	IsConnected() bool
}

var _ Endpoint = (*Device)(nil)

// Start opens the connection if it is not already open, leaving any
// failure to be retried by the next Handle call.
func (d *Device) Start() { d.Session.Start() }

// Handle drives the background heartbeat/stale/reconnect machinery one
// tick forward, the Go name for what the reference client calls handle().
// Callers not currently inside ReadStates/WriteStates should call this on
// a regular schedule (spec.md §5).
func (d *Device) Handle() { d.Session.Tick() }

// Stop closes the device's connection unconditionally.
func (d *Device) Stop() { d.Session.Stop() }

// IsConnected reports whether the device's session currently has an open
// connection.
func (d *Device) IsConnected() bool { return d.Session.IsConnected() }

// ReadStates issues a DP_QUERY, falling back to CONTROL_NEW for devices
// that answer it with the "json obj data unvalid" sentinel, and returns the
// decoded status object (scenarios S1 and S2 in spec.md §8).
func (d *Device) ReadStates() (map[string]any, error) {
	if err := d.Session.Connect(); err != nil {
		return nil, err
	}

	statusReply, all, err := d.readFromDevice(proto.DP_QUERY, 0)
	if err != nil {
		return nil, err
	}
	d.logHeartbeats(all)

	parsed := map[string]any{}
	if statusReply != nil && statusReply.hasData {
		if err := json.Unmarshal(statusReply.payload, &parsed); err != nil {
			return nil, fmt.Errorf("client: decoding status payload: %w", err)
		}
	}

	if d.onStatus != nil {
		d.onStatus(parsed, StatusKindStatus)
	}
	return parsed, nil
}

// WriteStates issues a CONTROL carrying dps and waits for its echo,
// reporting whether the device acknowledged the write (scenario S5 in
// spec.md §8). Any STATUS replies folded in along the way are also
// delivered to the status handler, as StatusKindCommand.
func (d *Device) WriteStates(dps map[string]any) (bool, error) {
	if err := d.Session.Connect(); err != nil {
		return false, err
	}

	seq, err := d.sendCommand(proto.CONTROL, dps)
	if err != nil {
		return false, err
	}

	all, err := d.collectReplies(func(all []reply) bool {
		return selectCommandReply(all, proto.CONTROL, seq) != nil
	})
	if err != nil {
		return false, err
	}

	d.dispatchSideEffects(all, StatusKindCommand)

	requestReply := selectCommandReply(all, proto.CONTROL, seq)
	if requestReply == nil {
		return false, nil
	}
	if requestReply.hasReturnCode && requestReply.returnCode != 0 {
		return false, nil
	}
	return true, nil
}

// WriteState is the single-datapoint convenience form of WriteStates. idx
// defaults to "1", the same default index the reference client's
// write_state() uses.
func (d *Device) WriteState(value any, idx string) (bool, error) {
	if idx == "" {
		idx = "1"
	}
	return d.WriteStates(map[string]any{idx: value})
}

// readFromDevice sends command and drains the socket until it is answered,
// recursing into CONTROL_NEW when the device reports it cannot honor a
// DP_QUERY, bounded to proto.MaxFallbackDepth levels deep. It mirrors
// __read_from_device in the reference client exactly, including which
// reply counts as the status payload for which command.
func (d *Device) readFromDevice(command proto.Command, depth int) (*reply, []reply, error) {
	seq, err := d.sendCommand(command, nil)
	if err != nil {
		return nil, nil, err
	}

	all, err := d.collectReplies(func(all []reply) bool {
		if selectCommandReply(all, command, seq) == nil {
			return false
		}
		if command == proto.CONTROL_NEW {
			return selectStatusReply(all) != nil
		}
		return true
	})
	if err != nil {
		return nil, all, err
	}

	requestReply := selectCommandReply(all, command, seq)
	statusReply := selectStatusReply(all)

	if command == proto.DP_QUERY && requestReply != nil && requestReply.hasData &&
		string(requestReply.payload) != proto.UnvalidSentinel {
		statusReply = requestReply
	}

	if statusReply == nil && depth < proto.MaxFallbackDepth {
		fallback := command
		if requestReply != nil && requestReply.hasData && string(requestReply.payload) == proto.UnvalidSentinel {
			// Some devices only offer partial status via CONTROL_NEW.
			fallback = proto.CONTROL_NEW
		}

		nestedStatus, nestedAll, nestedErr := d.readFromDevice(fallback, depth+1)
		if nestedErr != nil {
			return nil, all, nestedErr
		}
		statusReply = nestedStatus
		all = append(all, nestedAll...)
	}

	return statusReply, all, nil
}

// collectReplies keeps reading frames until stop reports satisfaction or a
// read yields nothing new — the same "drain until the expected reply shows
// up or there is nothing left to read" loop __read_from_device and
// __write_to_device both run.
func (d *Device) collectReplies(stop func(all []reply) bool) ([]reply, error) {
	var all []reply
	for !stop(all) {
		received, err := d.receiveOne()
		if err != nil {
			return all, err
		}
		all = append(all, received...)
		if len(received) == 0 {
			break
		}
	}
	return all, nil
}

// receiveOne performs the one bounded read a round trip iteration is
// allowed, splitting whatever arrived into decoded replies.
func (d *Device) receiveOne() ([]reply, error) {
	buf := make([]byte, 4096)
	n, err := d.Session.Endpoint().Read(buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	frames := wire.Split(buf[:n])
	replies := make([]reply, 0, len(frames))
	for _, frame := range frames {
		if r, ok := d.decodeFrame(frame); ok {
			replies = append(replies, r)
		}
	}
	if len(replies) > 0 {
		d.Session.MarkAlive()
	}
	return replies, nil
}

func (d *Device) decodeFrame(frame []byte) (reply, bool) {
	hdr := wire.DecodeHeader(frame)
	body := wire.Body(frame)

	rest := body
	if hdr.HasReturnCode {
		rest = body[4:]
	}

	command := proto.Command(hdr.Command)
	payload, err := d.builder.DecodePayload(d.version, command, rest)
	if err != nil {
		d.log.V(1).Info("dropping undecodable reply", "command", command, "error", err.Error())
		return reply{}, false
	}

	return reply{
		command:       command,
		seq:           hdr.Sequence,
		payload:       payload,
		hasData:       len(payload) > 0,
		hasReturnCode: hdr.HasReturnCode,
		returnCode:    hdr.ReturnCode,
	}, true
}

func selectCommandReply(replies []reply, command proto.Command, seq uint32) *reply {
	for i := range replies {
		if replies[i].command == command && replies[i].seq == seq {
			return &replies[i]
		}
	}
	return nil
}

func selectStatusReply(replies []reply) *reply {
	for i := range replies {
		if replies[i].command == proto.STATUS && replies[i].hasData {
			return &replies[i]
		}
	}
	return nil
}

// dispatchSideEffects logs a pong for every HEART_BEAT reply folded into a
// round trip and forwards every STATUS reply carrying data to the status
// handler under kind, mirroring write_states()'s per-reply loop.
func (d *Device) dispatchSideEffects(all []reply, kind StatusKind) {
	for i := range all {
		switch all[i].command {
		case proto.HEART_BEAT:
			d.log.V(1).Info("pong", "session", d.Session.ID)
		case proto.STATUS:
			if !all[i].hasData || d.onStatus == nil {
				continue
			}
			var parsed map[string]any
			if err := json.Unmarshal(all[i].payload, &parsed); err == nil {
				d.onStatus(parsed, kind)
			}
		}
	}
}

func (d *Device) logHeartbeats(all []reply) {
	for i := range all {
		if all[i].command == proto.HEART_BEAT {
			d.log.V(1).Info("pong", "session", d.Session.ID)
			return
		}
	}
}

func (d *Device) buildBody(command proto.Command, dps map[string]any) ([]byte, error) {
	switch command {
	case proto.DP_QUERY:
		return d.builder.BuildDPQuery()
	case proto.DP_QUERY_NEW:
		return d.builder.BuildDPQueryNew()
	case proto.CONTROL_NEW:
		return d.builder.BuildControlNew(dps)
	case proto.CONTROL:
		return d.builder.BuildControl(dps)
	case proto.HEART_BEAT:
		return d.builder.BuildHeartBeat()
	default:
		return nil, fmt.Errorf("client: no body template for command %s", command)
	}
}

func (d *Device) sendCommand(command proto.Command, dps map[string]any) (uint32, error) {
	body, err := d.buildBody(command, dps)
	if err != nil {
		return 0, err
	}

	wireBody, err := d.builder.WireBody(d.version, command, body)
	if err != nil {
		return 0, err
	}

	seq := d.Session.NextSequence()
	frame := wire.Encode(seq, uint32(command), wireBody)
	if err := d.Session.Endpoint().Send(frame); err != nil {
		return 0, err
	}
	return seq, nil
}

func (d *Device) sendHeartbeat() error {
	_, err := d.sendCommand(proto.HEART_BEAT, nil)
	return err
}

// handleBackgroundFrame is the session's FrameHandler: it decodes frames
// that arrive outside an active ReadStates/WriteStates round trip (an
// unsolicited STATUS push, or a HEART_BEAT echo) and dispatches them the
// same way handle() does in the reference client.
func (d *Device) handleBackgroundFrame(frame []byte) {
	r, ok := d.decodeFrame(frame)
	if !ok {
		return
	}

	if r.command == proto.HEART_BEAT {
		d.log.V(1).Info("pong", "session", d.Session.ID)
	}

	if r.command == proto.STATUS && r.hasData && d.onStatus != nil {
		var parsed map[string]any
		if err := json.Unmarshal(r.payload, &parsed); err == nil {
			d.onStatus(parsed, StatusKindStatus)
		}
	}
}
