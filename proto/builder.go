package proto

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fastybird-io/gotuya/cipher"
)

// Clock lets tests substitute a fixed "current time" for the `t` field. The
// zero value uses time.Now.
type Clock func() time.Time

// Builder produces the JSON command bodies and their version-specific wire
// framing for one device session. It is stateless beyond the identifiers and
// key the device was configured with — it does not track sequence numbers
// or connection state, which belong to the session state machine.
type Builder struct {
	DeviceID     string
	GatewayID    string // defaults to DeviceID when empty
	cipher       cipher.Cipher
	localKeyText string // the raw 16-byte local key, needed verbatim for the V3.1 MD5 header
	Now          Clock
}

// NewBuilder constructs a Builder for one device. localKey must be exactly
// 16 ASCII bytes, per spec.md §3.
func NewBuilder(deviceID, gatewayID, localKey string) Builder {
	if gatewayID == "" {
		gatewayID = deviceID
	}
	return Builder{
		DeviceID:     deviceID,
		GatewayID:    gatewayID,
		cipher:       cipher.NewFromString(localKey),
		localKeyText: localKey,
	}
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// timestamp formats the current Unix time the way every templated command
// expects the `t` field: decimal seconds as a string.
func (b Builder) timestamp() string {
	return strconv.FormatInt(b.now().Unix(), 10)
}

// controlBody is the JSON shape for CONTROL and CONTROL_NEW: devId, uid, t,
// and the caller's dps map. Field order here is also the wire order, since
// encoding/json marshals struct fields in declaration order.
type controlBody struct {
	DevID string         `json:"devId"`
	UID   string         `json:"uid"`
	T     string         `json:"t"`
	Dps   map[string]any `json:"dps"`
}

type queryBody struct {
	GwID  string `json:"gwId"`
	DevID string `json:"devId"`
	UID   string `json:"uid"`
	T     string `json:"t"`
}

type queryNewBody struct {
	DevID string `json:"devId"`
	UID   string `json:"uid"`
	T     string `json:"t"`
}

type statusRequestBody struct {
	GwID  string `json:"gwId"`
	DevID string `json:"devId"`
}

// controlNewDefaultDps is the placeholder dps map CONTROL_NEW bodies carry
// before the caller's own values override it — some non-conformant devices
// expect these keys present even when unset (recovered from the original
// Python client's dict-literal default; see SPEC_FULL.md).
func controlNewDefaultDps() map[string]any {
	return map[string]any{"1": "", "2": "", "3": ""}
}

// BuildControl renders a CONTROL command body: {devId, uid, t, dps}. dps
// keys are plain strings because Go's static typing already enforces the
// string-keyed map spec.md §4.C asks the builder to coerce into — there is
// no dynamic int/string key mixing to normalize in this language.
func (b Builder) BuildControl(dps map[string]any) ([]byte, error) {
	return marshalCompact(controlBody{
		DevID: b.DeviceID,
		UID:   b.DeviceID,
		T:     b.timestamp(),
		Dps:   dps,
	})
}

// BuildControlNew renders a CONTROL_NEW command body. It starts from the
// {"1":"","2":"","3":""} placeholder and lets dps override those entries,
// exactly like BuildControl but for the fallback command.
func (b Builder) BuildControlNew(dps map[string]any) ([]byte, error) {
	merged := controlNewDefaultDps()
	for k, v := range dps {
		merged[k] = v
	}
	return marshalCompact(controlBody{
		DevID: b.DeviceID,
		UID:   b.DeviceID,
		T:     b.timestamp(),
		Dps:   merged,
	})
}

// BuildDPQuery renders a DP_QUERY command body: {gwId, devId, uid, t}.
func (b Builder) BuildDPQuery() ([]byte, error) {
	return marshalCompact(queryBody{
		GwID:  b.GatewayID,
		DevID: b.DeviceID,
		UID:   b.DeviceID,
		T:     b.timestamp(),
	})
}

// BuildDPQueryNew renders a DP_QUERY_NEW command body: {devId, uid, t}.
func (b Builder) BuildDPQueryNew() ([]byte, error) {
	return marshalCompact(queryNewBody{
		DevID: b.DeviceID,
		UID:   b.DeviceID,
		T:     b.timestamp(),
	})
}

// BuildHeartBeat renders the empty HEART_BEAT body: {}.
func (b Builder) BuildHeartBeat() ([]byte, error) {
	return []byte("{}"), nil
}

// BuildStatusRequest renders a STATUS command body: {gwId, devId}. STATUS
// normally only appears as a reply, but the template exists in the
// original client's dict and is kept here for integrators addressing a
// sub-device behind a gateway (see SPEC_FULL.md).
func (b Builder) BuildStatusRequest() ([]byte, error) {
	return marshalCompact(statusRequestBody{
		GwID:  b.GatewayID,
		DevID: b.DeviceID,
	})
}

func marshalCompact(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return stripWhitespace(buf), nil
}

// stripWhitespace removes any stray whitespace bytes from an encoded JSON
// body. encoding/json.Marshal already produces compact output with no
// inserted whitespace, but spec.md §4.C states the invariant explicitly, so
// it is enforced here rather than assumed from the encoder's current
// behavior.
func stripWhitespace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			out = append(out, c)
		}
	}
	return out
}

// WireBody produces the bytes that go into the frame body (offset 16
// onward, before CRC+suffix) for a given command under the builder's
// protocol version: the version header (if any) followed by the encrypted
// JSON, per spec.md §3 and §4.C.
//
//   - V3.1: only CONTROL is encrypted. Its body is "3.1" + 16 hex chars
//     (a slice of an MD5 digest over the ciphertext) + the base64 ciphertext.
//     Every other command is sent as cleartext JSON.
//   - V3.3: every command except DP_QUERY is prefixed with "3.3" + 12 NUL
//     bytes before the raw-mode ciphertext; DP_QUERY has no such header.
func (b Builder) WireBody(version Version, command Command, jsonBody []byte) ([]byte, error) {
	switch version {
	case V31:
		return b.wireBodyV31(command, jsonBody)
	case V33:
		return b.wireBodyV33(command, jsonBody)
	default:
		return nil, fmt.Errorf("proto: unknown protocol version %q", version)
	}
}

func (b Builder) wireBodyV31(command Command, jsonBody []byte) ([]byte, error) {
	if command != CONTROL {
		return jsonBody, nil
	}

	ciphertext, err := b.cipher.EncryptBase64(jsonBody)
	if err != nil {
		return nil, err
	}

	header := md5HeaderV31(ciphertext, b.localKeyText)

	out := make([]byte, 0, len(header)+len(ciphertext))
	out = append(out, header...)
	out = append(out, ciphertext...)
	return out, nil
}

// md5HeaderV31 builds the "3.1" + 16 hex chars header written in front of a
// V3.1 CONTROL ciphertext: MD5("data="+ciphertext+"||lpv=3.1||"+localKey),
// hex-encoded, taking characters [8:24) of that hex string (spec.md §3,
// tested by property 5 in spec.md §8).
func md5HeaderV31(ciphertext []byte, localKey string) []byte {
	var preimage bytes.Buffer
	preimage.WriteString("data=")
	preimage.Write(ciphertext)
	preimage.WriteString("||lpv=3.1||")
	preimage.WriteString(localKey)

	sum := md5.Sum(preimage.Bytes())
	hexDigest := hex.EncodeToString(sum[:])

	header := make([]byte, 0, 19)
	header = append(header, "3.1"...)
	header = append(header, hexDigest[8:24]...)
	return header
}

func (b Builder) wireBodyV33(command Command, jsonBody []byte) ([]byte, error) {
	ciphertext, err := b.cipher.EncryptRaw(jsonBody)
	if err != nil {
		return nil, err
	}

	if command == DP_QUERY {
		return ciphertext, nil
	}

	header := append([]byte("3.3"), make([]byte, 12)...)
	out := make([]byte, 0, len(header)+len(ciphertext))
	out = append(out, header...)
	out = append(out, ciphertext...)
	return out, nil
}
