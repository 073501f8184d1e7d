package rcon

import (
	"errors"
	"fmt"

	"github.com/energizer-project/rconsole/internal/protocol"
)

var (
	// ErrInvalidPassword is returned when the server rejects the login.
	ErrInvalidPassword = errors.New("rcon: invalid password")

	// ErrUnauthorised is returned when the server rejects a command because
	// the session is not (or no longer) authenticated.
	ErrUnauthorised = errors.New("rcon: unauthorised")

	// ErrClosed is returned for operations on a closed client.
	ErrClosed = errors.New("rcon: client closed")
)

// TransportError wraps a failure of the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError reports a response whose packet type is not valid
// for the exchange that produced it.
type ProtocolViolationError struct {
	Exchange string
	Got      protocol.PacketType
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("rcon: unexpected packet type %s in %s response", e.Got, e.Exchange)
}
