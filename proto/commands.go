// Package proto builds and classifies the JSON command bodies exchanged
// with a Tuya device: the fixed set of command codes, the per-command field
// templates, and the version-specific framing (V3.1's MD5-keyed header,
// V3.3's "3.3" + 12-NUL header) that is placed in front of their ciphertext.
package proto

import "fmt"

// Command is one of the fixed Tuya command codes. Implementations must use
// exactly these numeric values — they are part of the wire protocol, not an
// internal enumeration this module is free to renumber.
type Command uint32

const (
	CONTROL      Command = 7
	STATUS       Command = 8
	HEART_BEAT   Command = 9
	DP_QUERY     Command = 10
	CONTROL_NEW  Command = 13
	DP_QUERY_NEW Command = 16
)

func (c Command) String() string {
	switch c {
	case CONTROL:
		return "CONTROL"
	case STATUS:
		return "STATUS"
	case HEART_BEAT:
		return "HEART_BEAT"
	case DP_QUERY:
		return "DP_QUERY"
	case CONTROL_NEW:
		return "CONTROL_NEW"
	case DP_QUERY_NEW:
		return "DP_QUERY_NEW"
	default:
		return fmt.Sprintf("COMMAND(%d)", uint32(c))
	}
}

// Version selects the on-the-wire dialect. The two versions disagree on
// what gets encrypted and how the header in front of the ciphertext looks.
type Version string

const (
	V31 Version = "3.1"
	V33 Version = "3.3"
)

// UnvalidSentinel is the literal payload string some non-conformant devices
// send back for a DP_QUERY they cannot answer in full; it is recognized only
// to trigger the CONTROL_NEW fallback in the coordinator (spec.md §4.F).
const UnvalidSentinel = "json obj data unvalid"

// MaxFallbackDepth bounds the DP_QUERY -> CONTROL_NEW -> ... recursive
// retry chain (spec.md §6).
const MaxFallbackDepth = 3
