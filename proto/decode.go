package proto

import (
	"bytes"
	"unicode/utf8"

	"github.com/fastybird-io/gotuya/cipher"
)

// DecodePayload extracts the JSON payload from a reply frame's body, which
// must already have had any leading 4-byte return code removed by the
// caller (wire.DecodeHeader reports whether one was present). It returns
// (nil, nil) when the device sent no payload at all, which is the normal
// shape of most CONTROL/HEART_BEAT acknowledgements.
//
// The decode rules mirror the quirks of the reference client exactly (see
// original_source/clients/device.py, __process_raw_reply): in V3.3, only
// STATUS replies carry the "3.3"+12-NUL version header on the wire; other
// commands' reply payloads (when present at all) are raw ciphertext with no
// header to strip.
func (b Builder) DecodePayload(version Version, command Command, rest []byte) ([]byte, error) {
	switch version {
	case V31:
		return b.decodeV31(rest)
	case V33:
		return b.decodeV33(command, rest)
	default:
		return nil, cipher.ErrDecrypt
	}
}

func (b Builder) decodeV31(rest []byte) ([]byte, error) {
	if len(rest) == 0 {
		return nil, nil
	}

	if rest[0] == '{' {
		if !utf8.Valid(rest) {
			return nil, cipher.ErrDecrypt
		}
		return rest, nil
	}

	if bytes.HasPrefix(rest, []byte("3.1")) {
		data := rest[3:]
		if len(data) < 16 {
			return nil, cipher.ErrDecrypt
		}
		data = data[16:] // skip the MD5 header hex digits

		plain, err := b.cipher.DecryptBase64(data)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(plain) {
			return nil, cipher.ErrDecrypt
		}
		return plain, nil
	}

	return nil, cipher.ErrDecrypt
}

func (b Builder) decodeV33(command Command, rest []byte) ([]byte, error) {
	if len(rest) == 0 {
		return nil, nil
	}

	payload := rest
	if command == STATUS {
		const headerLen = 15 // "3.3" + 12 NUL bytes
		if len(rest) < headerLen {
			return nil, cipher.ErrDecrypt
		}
		payload = rest[headerLen:]
	}

	plain, err := b.cipher.DecryptRaw(payload)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(plain) {
		return nil, cipher.ErrDecrypt
	}
	return plain, nil
}
