package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// WriteInt32 appends v in little-endian order and returns the bytes written.
func WriteInt32(buf *bytes.Buffer, v int32) int {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
	return len(b)
}

// WriteString appends the raw UTF-8 bytes of s without a terminator.
func WriteString(buf *bytes.Buffer, s string) int {
	buf.WriteString(s)
	return len(s)
}

// WritePad appends the 2-byte pad verbatim.
func WritePad(buf *bytes.Buffer, pad [2]byte) int {
	buf.Write(pad[:])
	return len(pad)
}

// ReadInt32 decodes a little-endian int32 from the first 4 bytes of b.
func ReadInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, &DecodeError{Type: "int32", Expected: 4, Found: len(b)}
	}
	return int32(binary.LittleEndian.Uint32(b[:4])), nil
}

// ReadString converts b to a string, replacing invalid UTF-8 with U+FFFD.
func ReadString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// ReadPad decodes the 2-byte pad from the start of b.
func ReadPad(b []byte) ([2]byte, error) {
	var pad [2]byte
	if len(b) < 2 {
		return pad, &DecodeError{Type: "[2]byte", Expected: 2, Found: len(b)}
	}
	copy(pad[:], b[:2])
	return pad, nil
}
