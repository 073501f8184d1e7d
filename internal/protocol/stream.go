package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// WriteFull writes all of data to w, looping over short writes.
func WriteFull(w io.Writer, data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := w.Write(data[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("failed to write frame (%d/%d bytes): %w", written, len(data), err)
		}
		if n == 0 {
			return written, fmt.Errorf("failed to write frame (%d/%d bytes): %w", written, len(data), io.ErrShortWrite)
		}
	}
	return written, nil
}

// ReadFrame reads one length-prefixed frame from r into buf and returns the
// filled region, prefix included. buf is grown in steps while the body
// arrives when the declared size does not fit; callers should keep the
// returned slice's backing array for reuse.
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	if cap(buf) < LengthPrefixSize {
		buf = make([]byte, 0, MaxRxSize)
	}
	buf = buf[:LengthPrefixSize]

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	size, err := ReadInt32(buf)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("declared frame size %d: %w", size, ErrInvalidPacketLength)
	}

	// Capacity doubles as body bytes arrive and never exceeds twice what
	// has been received.
	total := LengthPrefixSize + int(size)
	for len(buf) < total {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), min(2*cap(buf), total))
			copy(grown, buf)
			buf = grown
		}

		n, err := io.ReadFull(r, buf[len(buf):min(cap(buf), total)])
		buf = buf[:len(buf)+n]
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read frame body (%d/%d bytes): %w", len(buf)-LengthPrefixSize, size, err)
		}
	}

	return buf, nil
}

// ReadPacket reads and decodes one packet from r.
func ReadPacket(r io.Reader, buf []byte) (*Packet, error) {
	frame, err := ReadFrame(r, buf)
	if err != nil {
		return nil, err
	}
	return Decode(frame)
}

// WritePacket encodes p and writes it to w in full.
func WritePacket(w io.Writer, p *Packet) error {
	var buf bytes.Buffer
	buf.Grow(p.Size())
	n := p.Encode(&buf)
	_, err := WriteFull(w, buf.Bytes()[:n])
	return err
}
