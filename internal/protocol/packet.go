package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Packet is one RCON message.
// Length counts everything after the length field itself; it is computed
// for packets built here and taken verbatim from the wire when decoded.
type Packet struct {
	Length    int32
	RequestID int32
	Type      PacketType
	Payload   string
}

// NewLogin creates a login packet carrying the password.
func NewLogin(requestID int32, password string) *Packet {
	return newPacket(requestID, TypeLogin, password)
}

// NewCommand creates a command packet.
func NewCommand(requestID int32, command string) *Packet {
	return newPacket(requestID, TypeCommand, command)
}

// NewResponse creates a response packet. Only servers send these.
func NewResponse(requestID int32, body string) *Packet {
	return newPacket(requestID, TypeResponse, body)
}

// NewUnauthorized creates the packet a server sends for a rejected login or
// an unauthenticated command. The request id is always -1.
func NewUnauthorized() *Packet {
	return newPacket(-1, TypeUnauthorized, "")
}

func newPacket(requestID int32, t PacketType, payload string) *Packet {
	return &Packet{
		Length:    int32(HeaderSize + len(payload)),
		RequestID: requestID,
		Type:      t,
		Payload:   payload,
	}
}

// ValidatePayload rejects text the wire format cannot carry.
func ValidatePayload(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrEmbeddedNUL
	}
	return nil
}

// Size returns the full encoded size including the length prefix.
func (p *Packet) Size() int {
	return LengthPrefixSize + HeaderSize + len(p.Payload)
}

// Encode appends the packet to buf and returns the number of bytes written.
// Layout: [length][request_id][type][payload][0x00 0x00].
func (p *Packet) Encode(buf *bytes.Buffer) int {
	n := 0
	n += WriteInt32(buf, p.Length)
	n += WriteInt32(buf, p.RequestID)
	n += WriteInt32(buf, int32(p.Type))
	n += WriteString(buf, p.Payload)
	n += WritePad(buf, Pad)
	return n
}

// Decode parses a full frame, length prefix included.
// The payload ends at the first NUL after the header; exactly the 2-byte
// pad must follow from there. The declared length is not used for bounds.
func Decode(b []byte) (*Packet, error) {
	if len(b) < HeaderSize {
		return nil, ErrInvalidPacketLength
	}

	length, err := ReadInt32(b[0:])
	if err != nil {
		return nil, err
	}
	requestID, err := ReadInt32(b[4:])
	if err != nil {
		return nil, err
	}
	code, err := ReadInt32(b[8:])
	if err != nil {
		return nil, err
	}
	packetType, err := ParsePacketType(code)
	if err != nil {
		return nil, err
	}

	body := b[PayloadOffset:]
	term := bytes.IndexByte(body, 0)
	if term < 0 {
		return nil, ErrInvalidPacketLength
	}

	trailer := body[term:]
	if len(trailer) != len(Pad) {
		return nil, ErrInvalidPacketLength
	}
	pad, err := ReadPad(trailer)
	if err != nil {
		return nil, err
	}
	if pad != Pad {
		return nil, ErrInvalidPacketLength
	}

	return &Packet{
		Length:    length,
		RequestID: requestID,
		Type:      packetType,
		Payload:   ReadString(body[:term]),
	}, nil
}

// String returns a short description for debug logging. The payload of
// login packets is masked.
func (p *Packet) String() string {
	payload := p.Payload
	if p.Type == TypeLogin {
		payload = "***"
	}
	return fmt.Sprintf("Packet[id=%d type=%s len=%d payload=%q]", p.RequestID, p.Type, p.Length, payload)
}
