package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPacketLength is returned when a frame is shorter than the
	// header, has no payload terminator, or does not end in the fixed pad.
	ErrInvalidPacketLength = errors.New("protocol: invalid packet length")

	// ErrEmbeddedNUL is returned for outbound text containing a NUL byte,
	// which the wire format would read as the end of the payload.
	ErrEmbeddedNUL = errors.New("protocol: payload contains NUL byte")
)

// DecodeError reports a primitive field that could not be reconstructed
// because too few bytes were available.
type DecodeError struct {
	Type     string
	Expected int
	Found    int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: to decode %s expected %d bytes, but found %d bytes", e.Type, e.Expected, e.Found)
}

// UnknownPacketTypeError reports a type code outside the protocol's enumeration.
type UnknownPacketTypeError struct {
	Code int32
}

func (e *UnknownPacketTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown packet type 0x%08X", uint32(e.Code))
}
