package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		seq     uint32
		command uint32
		body    []byte
	}{
		// A return-code-only body, as a bare acknowledgement reply would
		// carry. Split's 28-byte floor (property 2) means a body shorter
		// than 4 bytes never round-trips through Split on a real device
		// reply, so every case here meets that floor.
		{"return code only", 1, 10, []byte{0x00, 0x00, 0x00, 0x00}},
		{"heartbeat reply", 7, 9, append([]byte{0x00, 0x00, 0x00, 0x00}, []byte("{}")...)},
		{"json body", 42, 7, []byte(`{"devId":"abc","dps":{"1":true}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Encode(tt.seq, tt.command, tt.body)

			frames := Split(frame)
			if len(frames) != 1 {
				t.Fatalf("Split() = %d frames, want 1", len(frames))
			}

			hdr := DecodeHeader(frames[0])
			if hdr.Sequence != tt.seq {
				t.Errorf("Sequence = %d, want %d", hdr.Sequence, tt.seq)
			}
			if hdr.Command != tt.command {
				t.Errorf("Command = %d, want %d", hdr.Command, tt.command)
			}

			gotBody := Body(frames[0])
			if !bytes.Equal(gotBody, tt.body) {
				t.Errorf("Body() = %x, want %x", gotBody, tt.body)
			}
		})
	}
}

// TestSplitRejectsShortFrame covers the 28-byte floor directly: a
// structurally valid frame (good sentinels, good CRC) that is merely short
// must still be dropped.
func TestSplitRejectsShortFrame(t *testing.T) {
	frame := Encode(1, 9, nil) // 16 + 0 + 8 = 24 bytes, below MinFrameSize
	if len(frame) >= MinFrameSize {
		t.Fatalf("test setup: frame is %d bytes, want < %d", len(frame), MinFrameSize)
	}

	if frames := Split(frame); len(frames) != 0 {
		t.Errorf("Split() = %d frames, want 0 for a sub-floor frame", len(frames))
	}
}

// TestSplitTwoConcatenatedFrames is property 1 from spec.md §8: encoding two
// frames back to back and splitting must recover exactly two frames with
// matching bodies.
func TestSplitTwoConcatenatedFrames(t *testing.T) {
	body := []byte(`{"gwId":"dev","devId":"dev","uid":"dev","t":"1700000000"}`)

	first := Encode(1, 10, body)
	second := Encode(2, 10, body)

	stream := append(append([]byte{}, first...), second...)

	frames := Split(stream)
	if len(frames) != 2 {
		t.Fatalf("Split() = %d frames, want 2", len(frames))
	}

	for i, f := range frames {
		hdr := DecodeHeader(f)
		if hdr.Sequence != uint32(i+1) {
			t.Errorf("frame %d: Sequence = %d, want %d", i, hdr.Sequence, i+1)
		}
		if !bytes.Equal(Body(f), body) {
			t.Errorf("frame %d: Body mismatch", i)
		}
	}
}

// TestSplitDropsCorruptFrame is scenario S6 and property 2 from spec.md §8:
// a bit flip in the first frame's CRC must not affect recovery of the
// second frame, and Split must never panic on arbitrary input.
func TestSplitDropsCorruptFrame(t *testing.T) {
	body := []byte(`{"1":true}`)

	first := Encode(1, 7, body)
	first[len(first)-5] ^= 0x01 // flip a bit inside the CRC field

	second := Encode(2, 7, body)

	stream := append(append([]byte{}, first...), second...)

	frames := Split(stream)
	if len(frames) != 1 {
		t.Fatalf("Split() = %d frames, want 1 (corrupt frame dropped)", len(frames))
	}

	hdr := DecodeHeader(frames[0])
	if hdr.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", hdr.Sequence)
	}
}

func TestSplitNeverPanicsOnGarbage(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0x00, 0x00, 0x55, 0xAA},
		bytes.Repeat([]byte{0x00, 0x00, 0x55, 0xAA}, 20),
		{0x00, 0x00, 0x55, 0xAA, 0x00, 0x00, 0xAA, 0x55},
	}

	for i, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("input %d: Split panicked: %v", i, r)
				}
			}()
			Split(in)
		}()
	}
}

func TestReturnCodeDetection(t *testing.T) {
	// rc == 0 is a valid return code.
	body := make([]byte, 4)
	frame := Encode(1, 8, body)
	hdr := DecodeHeader(frame)
	if !hdr.HasReturnCode || hdr.ReturnCode != 0 {
		t.Errorf("HasReturnCode = %v, ReturnCode = %d, want true, 0", hdr.HasReturnCode, hdr.ReturnCode)
	}

	// A JSON body starting with '{' (0x7B) should not look like a return code
	// once the high bytes carry non-zero data.
	jsonBody := []byte(`{"a":1}extra padding to exceed four bytes safely`)
	frame2 := Encode(1, 8, jsonBody)
	hdr2 := DecodeHeader(frame2)
	if hdr2.HasReturnCode {
		t.Errorf("HasReturnCode = true for JSON body, want false")
	}
}
