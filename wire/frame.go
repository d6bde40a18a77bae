// Package wire implements the binary frame layout shared by every Tuya
// local-network message: a fixed prefix/suffix sentinel pair, a sequence
// number the device echoes back, a command code, and a trailing CRC32 over
// everything but the CRC and suffix themselves.
//
// The device is free to coalesce several frames into one TCP segment, and a
// single segment may also contain a truncated frame tail. Split is the only
// safe way to recover individual frames from such a stream: it resynchronizes
// on the prefix sentinel and keeps only segments whose CRC checks out.
package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// Sentinels delimiting every frame on the wire.
const (
	PrefixSentinel uint32 = 0x000055AA
	SuffixSentinel uint32 = 0x0000AA55
)

// Byte offsets and sizes within a frame, per the layout in spec.md §3.
const (
	prefixOffset  = 0
	seqOffset     = 4
	cmdOffset     = 8
	lengthOffset  = 12
	bodyOffset    = 16
	headerSize    = 16 // prefix+seq+cmd+length
	crcSuffixSize = 8  // trailing CRC32 + suffix sentinel

	// MinFrameSize is the floor Split enforces on any candidate, 28 bytes.
	// header+CRC/suffix alone would allow 24, but the reference client
	// hard-codes 28 regardless of body length, so a 24-27 byte candidate is
	// rejected even though its structure would otherwise parse cleanly.
	MinFrameSize = 28
)

// Header is the decoded fixed portion of a frame, plus the optional return
// code read from the first four bytes of the body.
type Header struct {
	Sequence    uint32
	Command     uint32
	Size        uint32 // payload length field as transmitted, counted from offset 16 inclusive of CRC+suffix
	ReturnCode  uint32
	HasReturnCode bool
}

// Encode assembles a complete frame: sentinel, sequence, command, length,
// body, CRC32, sentinel. The length field counts every byte from offset 16
// through the trailing suffix, inclusive, matching spec.md §3.
func Encode(seq, command uint32, body []byte) []byte {
	bodyLen := len(body)
	length := uint32(bodyLen + crcSuffixSize)

	frame := make([]byte, headerSize+bodyLen+crcSuffixSize)
	binary.BigEndian.PutUint32(frame[prefixOffset:], PrefixSentinel)
	binary.BigEndian.PutUint32(frame[seqOffset:], seq)
	binary.BigEndian.PutUint32(frame[cmdOffset:], command)
	binary.BigEndian.PutUint32(frame[lengthOffset:], length)
	copy(frame[bodyOffset:], body)

	crcEnd := len(frame) - crcSuffixSize
	crc := crc32.ChecksumIEEE(frame[:crcEnd])
	binary.BigEndian.PutUint32(frame[crcEnd:], crc)
	binary.BigEndian.PutUint32(frame[crcEnd+4:], SuffixSentinel)

	return frame
}

// DecodeHeader parses the fixed fields of a frame whose length has already
// been validated by Split. It does not re-check the CRC or sentinels.
func DecodeHeader(frame []byte) Header {
	rc := binary.BigEndian.Uint32(frame[bodyOffset:])
	return Header{
		Sequence:      binary.BigEndian.Uint32(frame[seqOffset:]),
		Command:       binary.BigEndian.Uint32(frame[cmdOffset:]),
		Size:          binary.BigEndian.Uint32(frame[lengthOffset:]),
		ReturnCode:    rc,
		HasReturnCode: rc&0xFFFFFF00 == 0,
	}
}

// Body returns the bytes between the header and the trailing CRC/suffix,
// i.e. the portion DecodeHeader's return-code peek looked at the front of.
func Body(frame []byte) []byte {
	return frame[bodyOffset : len(frame)-crcSuffixSize]
}

// Split scans stream for occurrences of the prefix sentinel and yields each
// byte-aligned candidate frame running up to (but not including) the next
// occurrence of the prefix, or the end of stream. A candidate is accepted
// only if it is at least MinFrameSize long, ends with the suffix sentinel,
// and its CRC32 over everything but the trailing CRC+suffix matches. Frames
// that fail any of those checks are dropped silently — the caller sees only
// valid frames, never a parse error, because a single corrupt byte must not
// stop the rest of the stream from being recovered.
func Split(stream []byte) [][]byte {
	var frames [][]byte

	starts := findAll(stream, PrefixSentinel)
	for i, start := range starts {
		end := len(stream)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		candidate := stream[start:end]
		if isValidFrame(candidate) {
			frames = append(frames, candidate)
		}
	}

	return frames
}

func isValidFrame(candidate []byte) bool {
	if len(candidate) < MinFrameSize {
		return false
	}
	if binary.BigEndian.Uint32(candidate[len(candidate)-4:]) != SuffixSentinel {
		return false
	}

	crcEnd := len(candidate) - 4
	wantCRC := binary.BigEndian.Uint32(candidate[crcEnd-4 : crcEnd])
	gotCRC := crc32.ChecksumIEEE(candidate[:crcEnd-4])

	return wantCRC == gotCRC
}

// findAll returns every byte offset in stream at which the big-endian u32
// value sentinel begins, scanning byte-by-byte (the sentinel is not
// guaranteed to be 4-byte aligned relative to the start of a TCP read).
func findAll(stream []byte, sentinel uint32) []int {
	if len(stream) < 4 {
		return nil
	}

	var want [4]byte
	binary.BigEndian.PutUint32(want[:], sentinel)

	var offsets []int
	for i := 0; i+4 <= len(stream); i++ {
		if stream[i] == want[0] && stream[i+1] == want[1] && stream[i+2] == want[2] && stream[i+3] == want[3] {
			offsets = append(offsets, i)
		}
	}
	return offsets
}
