// Package rcon implements a synchronous Source RCON client. A Client owns
// one TCP connection, authenticates once on Connect and then runs one
// request/response exchange per Execute call. It is not safe for
// concurrent use; callers sharing a client must serialize access.
package rcon

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/protocol"
)

// State is the lifecycle position of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateClosed
)

var stateStrings = map[State]string{
	StateDisconnected:  "disconnected",
	StateConnected:     "connected",
	StateAuthenticated: "authenticated",
	StateClosed:        "closed",
}

// String returns the lowercase state name.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// Client is an authenticated RCON connection.
type Client struct {
	conn     net.Conn
	sequence *Sequence
	opts     options
	state    State
	logger   zerolog.Logger

	// Scratch buffers, reset and reused on every exchange.
	tx *bytes.Buffer
	rx []byte
}

// Connect dials address, authenticates with password and returns a ready
// client. If authentication fails the connection is closed and no client
// is returned.
func Connect(ctx context.Context, address, password string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	c := newClient(conn, o)
	c.logger.Debug().Msg("tcp connection established")

	if err := c.authenticate(password); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Info().Msg("rcon session authenticated")
	return c, nil
}

func newClient(conn net.Conn, o options) *Client {
	return &Client{
		conn:     conn,
		sequence: NewSequence(),
		opts:     o,
		state:    StateConnected,
		logger: log.With().
			Str("component", "rcon").
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
		tx: bytes.NewBuffer(make([]byte, 0, protocol.MaxTxSize)),
		rx: make([]byte, 0, protocol.MaxRxSize),
	}
}

// authenticate runs the login exchange.
func (c *Client) authenticate(password string) error {
	if err := protocol.ValidatePayload(password); err != nil {
		return err
	}

	requestID := c.sequence.Advance()
	resp, err := c.exchange(protocol.NewLogin(requestID, password))
	if err != nil {
		return err
	}

	switch resp.Type {
	case protocol.TypeUnauthorized:
		c.logger.Warn().Int32("request_id", requestID).Msg("login rejected by server")
		return ErrInvalidPassword
	case protocol.TypeCommand:
		c.state = StateAuthenticated
		return nil
	default:
		return &ProtocolViolationError{Exchange: "login", Got: resp.Type}
	}
}

// Execute sends command and returns the server's response text.
// The response must fit in a single packet; see ExecuteMulti for long output.
func (c *Client) Execute(command string) (string, error) {
	if c.state == StateClosed {
		return "", ErrClosed
	}
	if err := protocol.ValidatePayload(command); err != nil {
		return "", err
	}

	requestID := c.sequence.Advance()
	resp, err := c.exchange(protocol.NewCommand(requestID, command))
	if err != nil {
		return "", err
	}

	switch resp.Type {
	case protocol.TypeUnauthorized:
		c.state = StateConnected
		return "", ErrUnauthorised
	case protocol.TypeResponse:
		return resp.Payload, nil
	default:
		return "", &ProtocolViolationError{Exchange: "command", Got: resp.Type}
	}
}

// ExecuteMulti sends command followed by an empty probe command and
// concatenates every response packet carrying the command's id until the
// probe's reply arrives. Servers answer requests in order, so the probe
// reply marks the end of a fragmented response.
func (c *Client) ExecuteMulti(command string) (string, error) {
	if c.state == StateClosed {
		return "", ErrClosed
	}
	if err := protocol.ValidatePayload(command); err != nil {
		return "", err
	}

	requestID := c.sequence.Advance()
	probeID := c.sequence.Advance()

	if err := c.send(protocol.NewCommand(requestID, command)); err != nil {
		return "", err
	}
	if err := c.send(protocol.NewCommand(probeID, "")); err != nil {
		return "", err
	}

	var out strings.Builder
	fragments := 0
	unauthorized := false

	for {
		resp, err := c.receive()
		if err != nil {
			return "", err
		}

		switch {
		case resp.Type == protocol.TypeUnauthorized:
			// One rejection per request; the second one belongs to the probe.
			if unauthorized {
				c.state = StateConnected
				return "", ErrUnauthorised
			}
			unauthorized = true
		case resp.RequestID == probeID:
			if unauthorized {
				c.state = StateConnected
				return "", ErrUnauthorised
			}
			c.logger.Debug().
				Int32("request_id", requestID).
				Int("fragments", fragments).
				Int("bytes", out.Len()).
				Msg("multi-packet response complete")
			return out.String(), nil
		case resp.Type == protocol.TypeResponse && resp.RequestID == requestID:
			out.WriteString(resp.Payload)
			fragments++
		default:
			return "", &ProtocolViolationError{Exchange: "command", Got: resp.Type}
		}
	}
}

// exchange performs one send/receive round trip.
func (c *Client) exchange(req *protocol.Packet) (*protocol.Packet, error) {
	if err := c.send(req); err != nil {
		return nil, err
	}
	return c.receive()
}

func (c *Client) send(req *protocol.Packet) error {
	c.tx.Reset()
	n := req.Encode(c.tx)

	if c.opts.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}

	if _, err := protocol.WriteFull(c.conn, c.tx.Bytes()[:n]); err != nil {
		return &TransportError{Op: "write", Err: err}
	}

	c.logger.Trace().
		Int32("request_id", req.RequestID).
		Str("type", req.Type.String()).
		Int("bytes", n).
		Msg("packet sent")
	return nil
}

func (c *Client) receive() (*protocol.Packet, error) {
	if c.opts.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
	}

	frame, err := protocol.ReadFrame(c.conn, c.rx[:0])
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidPacketLength) {
			return nil, err
		}
		return nil, &TransportError{Op: "read", Err: err}
	}
	c.rx = frame[:0]

	resp, err := protocol.Decode(frame)
	if err != nil {
		return nil, err
	}

	c.logger.Trace().
		Int32("request_id", resp.RequestID).
		Str("type", resp.Type.String()).
		Int("bytes", len(frame)).
		Msg("packet received")
	return resp, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return c.state
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local end of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the connection. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.logger.Debug().Msg("rcon connection closed")
	return c.conn.Close()
}
