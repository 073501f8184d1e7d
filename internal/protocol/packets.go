// Package protocol implements the Source RCON wire format: packet
// encoding and decoding, the primitive codec underneath it, and helpers
// for moving whole frames across a stream. All integers are signed
// 32-bit little-endian and every frame starts with a 4-byte length prefix.
package protocol

import (
	"fmt"
	"math"
)

// PacketType identifies the kind of an RCON packet.
type PacketType int32

// Packet types defined by the protocol.
const (
	TypeResponse     PacketType = 0x00          // Server -> client command output
	TypeCommand      PacketType = 0x02          // Client -> server command, or login acknowledgment
	TypeLogin        PacketType = 0x03          // Client -> server authentication request
	TypeUnauthorized PacketType = math.MinInt32 // Server -> client, failed or missing authentication
)

const (
	// HeaderSize is the minimum size of a decodable frame: length, request id
	// and the two trailing NUL bytes.
	HeaderSize = 10

	// LengthPrefixSize is the size of the frame length prefix in bytes.
	LengthPrefixSize = 4

	// PayloadOffset is where the payload starts inside a full frame.
	PayloadOffset = 12

	// MaxTxSize is the largest documented outbound frame.
	MaxTxSize = 1460

	// MaxRxSize is the largest documented inbound frame.
	MaxRxSize = 4110

	// MaxResponsePayload is the largest payload a server puts in one
	// Response packet before fragmenting.
	MaxResponsePayload = 4096
)

// Pad is the fixed 2-byte trailer: payload terminator plus the empty string.
var Pad = [2]byte{0, 0}

// ParsePacketType maps a raw type code read off the wire to a PacketType.
func ParsePacketType(code int32) (PacketType, error) {
	switch PacketType(code) {
	case TypeResponse, TypeCommand, TypeLogin, TypeUnauthorized:
		return PacketType(code), nil
	default:
		return 0, &UnknownPacketTypeError{Code: code}
	}
}

// String returns a readable name for the packet type.
func (t PacketType) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeCommand:
		return "command"
	case TypeLogin:
		return "login"
	case TypeUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}
