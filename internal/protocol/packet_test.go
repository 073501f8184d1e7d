package protocol

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func encode(p *Packet) []byte {
	var buf bytes.Buffer
	p.Encode(&buf)
	return buf.Bytes()
}

func TestConstructorsLength(t *testing.T) {
	for _, payload := range []string{"", "secret", "status", strings.Repeat("x", 1000), "ünïcode"} {
		login := NewLogin(7, payload)
		if login.Length != int32(10+len(payload)) {
			t.Fatalf("login length = %d for %q", login.Length, payload)
		}
		if login.Type != TypeLogin || login.RequestID != 7 {
			t.Fatalf("unexpected login packet: %+v", login)
		}

		cmd := NewCommand(8, payload)
		if cmd.Length != int32(10+len(payload)) {
			t.Fatalf("command length = %d for %q", cmd.Length, payload)
		}
		if cmd.Type != TypeCommand || cmd.RequestID != 8 {
			t.Fatalf("unexpected command packet: %+v", cmd)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	p := NewCommand(2, "help")
	var buf bytes.Buffer
	n := p.Encode(&buf)

	want := []byte{
		14, 0, 0, 0, // length
		2, 0, 0, 0, // request id
		2, 0, 0, 0, // type
		'h', 'e', 'l', 'p',
		0, 0,
	}
	if n != len(want) || n != p.Size() {
		t.Fatalf("written = %d, size = %d, want %d", n, p.Size(), len(want))
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded = %x\nwant      %x", buf.Bytes(), want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
	}{
		{"login", NewLogin(1, "secret")},
		{"command", NewCommand(2, "status")},
		{"empty command", NewCommand(3, "")},
		{"response", NewResponse(4, "Available commands: help, status")},
		{"unauthorized", NewUnauthorized()},
		{"large id", NewCommand(math.MaxInt32, "say hi")},
		{"utf8", NewResponse(5, "Spieler: Jürgen ✓")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(encode(tt.packet))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.RequestID != tt.packet.RequestID || got.Type != tt.packet.Type || got.Payload != tt.packet.Payload {
				t.Fatalf("round trip mismatch: got=%+v want=%+v", got, tt.packet)
			}
			if got.Length != tt.packet.Length {
				t.Fatalf("length = %d, want %d", got.Length, tt.packet.Length)
			}
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	full := encode(NewCommand(1, ""))
	for n := 0; n < HeaderSize; n++ {
		if _, err := Decode(full[:n]); !errors.Is(err, ErrInvalidPacketLength) {
			t.Fatalf("len %d: expected ErrInvalidPacketLength, got %v", n, err)
		}
	}
}

func TestDecodeTruncatedTypeField(t *testing.T) {
	full := encode(NewCommand(1, ""))
	_, err := Decode(full[:11])
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decErr.Expected != 4 || decErr.Found != 3 {
		t.Fatalf("unexpected fields: %+v", decErr)
	}
}

func TestDecodeMissingTerminator(t *testing.T) {
	b := encode(NewCommand(1, "abc"))
	b = b[:len(b)-2] // drop terminator and pad
	if _, err := Decode(b); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength, got %v", err)
	}

	if _, err := Decode(b[:PayloadOffset]); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("header only: expected ErrInvalidPacketLength, got %v", err)
	}
}

func TestDecodeRejectsBadTrailer(t *testing.T) {
	tests := []struct {
		name    string
		trailer []byte
	}{
		{"terminator only", []byte{0}},
		{"non-zero pad", []byte{0, 7}},
		{"extra bytes", []byte{0, 0, 0}},
		{"embedded nul", []byte{0, 'x', 'y', 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WriteInt32(&buf, 0)
			WriteInt32(&buf, 9)
			WriteInt32(&buf, int32(TypeResponse))
			buf.WriteString("out")
			buf.Write(tt.trailer)

			if _, err := Decode(buf.Bytes()); !errors.Is(err, ErrInvalidPacketLength) {
				t.Fatalf("expected ErrInvalidPacketLength, got %v", err)
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	for _, code := range []int32{1, 4, -1, 0x7FFFFFFF} {
		var buf bytes.Buffer
		WriteInt32(&buf, 10)
		WriteInt32(&buf, 1)
		WriteInt32(&buf, code)
		WritePad(&buf, Pad)

		_, err := Decode(buf.Bytes())
		var typeErr *UnknownPacketTypeError
		if !errors.As(err, &typeErr) {
			t.Fatalf("code %d: expected UnknownPacketTypeError, got %v", code, err)
		}
		if typeErr.Code != code {
			t.Fatalf("code = %d, want %d", typeErr.Code, code)
		}
	}
}

func TestDecodeIgnoresDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	WriteInt32(&buf, 999)
	WriteInt32(&buf, 3)
	WriteInt32(&buf, int32(TypeResponse))
	WriteString(&buf, "ok")
	WritePad(&buf, Pad)

	p, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Payload != "ok" || p.Length != 999 {
		t.Fatalf("unexpected packet: %+v", p)
	}
}

func TestParsePacketType(t *testing.T) {
	for _, pt := range []PacketType{TypeResponse, TypeCommand, TypeLogin, TypeUnauthorized} {
		got, err := ParsePacketType(int32(pt))
		if err != nil || got != pt {
			t.Fatalf("ParsePacketType(%d) = %v, %v", int32(pt), got, err)
		}
	}
}

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload("status"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePayload("sta\x00tus"); !errors.Is(err, ErrEmbeddedNUL) {
		t.Fatalf("expected ErrEmbeddedNUL, got %v", err)
	}
}

func TestStringMasksLogin(t *testing.T) {
	if s := NewLogin(1, "hunter2").String(); strings.Contains(s, "hunter2") {
		t.Fatalf("password leaked: %s", s)
	}
	if s := NewCommand(1, "status").String(); !strings.Contains(s, "status") {
		t.Fatalf("command missing from %s", s)
	}
}
