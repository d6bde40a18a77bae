// Package cipher implements the AES-128-ECB + PKCS#7 payload encryption
// used both for per-device local control traffic and for the fixed-key
// discovery broadcast, in the two wire representations the protocol mixes:
// base64-wrapped ciphertext (V3.1 control frames, discovery announcements)
// and raw ciphertext (V3.3 device traffic).
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"errors"
)

const blockSize = aes.BlockSize // 16

// ErrDecrypt is returned for any decryption failure: wrong key, corrupt
// padding, or (as reported by proto's payload decoding) non-UTF-8 plaintext. Per
// spec.md §7 the caller treats this as "drop the reply", never a fatal error.
var ErrDecrypt = errors.New("cipher: decrypt failed")

// discoveryKeySeed is the fixed passphrase every Tuya device derives its
// discovery-broadcast key from.
const discoveryKeySeed = "yGAdlopoPVldABfn"

// DiscoveryKey returns the well-known 16-byte AES key used to decrypt UDP
// discovery announcements: MD5("yGAdlopoPVldABfn").
func DiscoveryKey() [16]byte {
	return md5.Sum([]byte(discoveryKeySeed))
}

// Cipher encrypts and decrypts payloads under a single 16-byte local key.
type Cipher struct {
	key [16]byte
}

// New constructs a Cipher from a device's 16-byte ASCII local key.
func New(key [16]byte) Cipher {
	return Cipher{key: key}
}

// NewFromString constructs a Cipher from the device's local key string. The
// caller is expected to have already validated that it is exactly 16 bytes;
// NewFromString panics if it is not, since a misconfigured local key is a programmer
// error, not a runtime condition to recover from.
func NewFromString(key string) Cipher {
	if len(key) != 16 {
		panic("cipher: local key must be exactly 16 bytes")
	}
	var k [16]byte
	copy(k[:], key)
	return New(k)
}

// EncryptRaw encrypts plaintext under PKCS#7 padding and returns the raw AES
// output (V3.3 device traffic framing).
func (c Cipher) EncryptRaw(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	return ecbEncrypt(block, pkcs7Pad(plaintext, blockSize)), nil
}

// EncryptBase64 encrypts plaintext the same way as EncryptRaw, then wraps
// the ciphertext in standard base64 (V3.1 control frames, discovery
// announcements).
func (c Cipher) EncryptBase64(plaintext []byte) ([]byte, error) {
	raw, err := c.EncryptRaw(plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// DecryptRaw reverses EncryptRaw.
func (c Cipher) DecryptRaw(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, ErrDecrypt
	}
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, ErrDecrypt
	}
	plain := ecbDecrypt(block, ciphertext)
	return pkcs7Unpad(plain, blockSize)
}

// DecryptBase64 reverses EncryptBase64: it strips the base64 wrapper first,
// then decrypts.
func (c Cipher) DecryptBase64(wrapped []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(wrapped)))
	n, err := base64.StdEncoding.Decode(raw, wrapped)
	if err != nil {
		return nil, ErrDecrypt
	}
	return c.DecryptRaw(raw[:n])
}

// ecbEncrypt and ecbDecrypt implement AES in ECB mode. Go's standard library
// deliberately omits ECB (it leaks plaintext structure and is unsuitable for
// general use), but the Tuya local protocol mandates it, so the block loop
// is inlined here rather than reached for via a general-purpose streaming
// cipher mode from crypto/cipher, none of which model ECB.
func ecbEncrypt(block stdcipher.Block, data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blockSize {
		block.Encrypt(out[i:i+blockSize], data[i:i+blockSize])
	}
	return out
}

func ecbDecrypt(block stdcipher.Block, data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blockSize {
		block.Decrypt(out[i:i+blockSize], data[i:i+blockSize])
	}
	return out
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, ErrDecrypt
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > size || padLen > len(data) {
		return nil, ErrDecrypt
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrDecrypt
		}
	}
	return data[:len(data)-padLen], nil
}
