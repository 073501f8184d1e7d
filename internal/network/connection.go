// Package network implements the server side of the RCON protocol: a TCP
// listener that accepts client connections, authenticates them and answers
// commands through a pluggable handler. It backs the mock subcommand and
// end-to-end tests of the client.
package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/protocol"
)

// WriteTimeout bounds every packet write to a client.
const WriteTimeout = 10 * time.Second

// ErrConnectionClosed is returned when writing to a closed connection.
var ErrConnectionClosed = errors.New("network: connection is closed")

// Connection wraps one accepted RCON client connection.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	id     uint64
	logger zerolog.Logger

	connectedAt  time.Time
	lastActivity time.Time

	authenticated bool
	closed        bool

	rx []byte
}

// NewConnection wraps an existing net.Conn.
func NewConnection(id uint64, conn net.Conn) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		id:           id,
		connectedAt:  now,
		lastActivity: now,
		logger: log.With().
			Str("component", "rcon_conn").
			Uint64("conn_id", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
		rx: make([]byte, 0, protocol.MaxRxSize),
	}
}

// ID returns the registry id assigned on accept.
func (c *Connection) ID() uint64 {
	return c.id
}

// ReadPacket blocks until one packet arrives or the timeout passes.
// Only the serving goroutine reads, so the receive buffer is not locked.
func (c *Connection) ReadPacket(timeout time.Duration) (*protocol.Packet, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	}

	frame, err := protocol.ReadFrame(c.conn, c.rx[:0])
	if err != nil {
		return nil, err
	}
	c.rx = frame[:0]

	p, err := protocol.Decode(frame)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.logger.Trace().Stringer("packet", p).Msg("packet received")
	return p, nil
}

// WritePacket sends one packet.
func (c *Connection) WritePacket(p *protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := protocol.WritePacket(c.conn, p); err != nil {
		return err
	}

	c.lastActivity = time.Now()
	return nil
}

// SetAuthenticated records the outcome of the last login attempt.
func (c *Connection) SetAuthenticated(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = ok
}

// Authenticated reports whether the client has logged in.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ConnectionRegistry tracks live client connections.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[uint64]*Connection),
	}
}

// Register adds a connection to the registry.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Unregister closes and removes a connection.
func (r *ConnectionRegistry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[id]; ok {
		conn.Close()
		delete(r.conns, id)
	}
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every connection in the registry.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, conn := range r.conns {
		conn.Close()
		delete(r.conns, id)
	}
}

// CleanStale closes connections idle for longer than timeout and returns
// how many were closed.
func (r *ConnectionRegistry) CleanStale(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleaned := 0
	cutoff := time.Now().Add(-timeout)

	for id, conn := range r.conns {
		if conn.LastActivity().Before(cutoff) {
			conn.Close()
			delete(r.conns, id)
			cleaned++
			log.Warn().
				Uint64("conn_id", id).
				Time("last_activity", conn.LastActivity()).
				Msg("cleaned stale connection")
		}
	}

	return cleaned
}
