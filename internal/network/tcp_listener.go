package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/protocol"
)

// DefaultIdleTimeout is how long a connection may stay silent before the
// server drops it.
const DefaultIdleTimeout = 5 * time.Minute

// Server answers RCON clients on a TCP listener.
type Server struct {
	// Password is the only credential accepted at login.
	Password string
	// Handler produces the output of an authenticated command.
	// DefaultHandler is used when nil.
	Handler Handler
	// IdleTimeout closes connections that send nothing for this long.
	// Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	registry *ConnectionRegistry
	nextID   atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// Listen binds addr with SO_REUSEADDR so the mock can be restarted on the
// same port immediately.
func (s *Server) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start rcon listener on %s: %w", addr, err)
	}
	return ln, nil
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := s.Listen(ctx, addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Close is
// called. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.registry == nil {
		s.registry = NewConnectionRegistry()
	}
	s.listener = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("rcon mock server started")

	stop := make(chan struct{})
	defer close(stop)
	go s.sweep(ctx, ln, stop)

	defer func() {
		s.registry.CloseAll()
		s.wg.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info().Msg("rcon mock server stopping")
				return nil
			}
			log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		c := NewConnection(s.nextID.Add(1), conn)
		s.registry.Register(c)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.registry.Unregister(c.ID())
			s.handleConnection(c)
		}()
	}
}

// sweep closes the listener on ctx cancellation and drops connections
// that have been silent for longer than the idle timeout.
func (s *Server) sweep(ctx context.Context, ln net.Listener, stop <-chan struct{}) {
	idle := s.idleTimeout()
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ln.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if n := s.registry.CleanStale(idle); n > 0 {
				log.Debug().Int("closed", n).Msg("idle sweep")
			}
		}
	}
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout > 0 {
		return s.IdleTimeout
	}
	return DefaultIdleTimeout
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		return 0
	}
	return s.registry.Count()
}

// Close stops accepting and drops every connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(conn *Connection) {
	logger := log.With().
		Str("component", "rcon_server").
		Uint64("conn_id", conn.ID()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	logger.Debug().Msg("client connected")

	idle := s.idleTimeout()

	for {
		p, err := conn.ReadPacket(idle)
		if err != nil {
			if conn.IsClosed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Debug().Msg("client disconnected")
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn().Dur("idle", idle).Msg("connection idle, closing")
				return
			}
			logger.Warn().Err(err).Msg("read error, closing connection")
			return
		}

		if err := s.dispatch(conn, p, logger); err != nil {
			logger.Warn().Err(err).Msg("write error, closing connection")
			return
		}
	}
}

func (s *Server) dispatch(conn *Connection, p *protocol.Packet, logger zerolog.Logger) error {
	switch p.Type {
	case protocol.TypeLogin:
		if p.Payload != s.Password {
			conn.SetAuthenticated(false)
			logger.Info().Int32("request_id", p.RequestID).Msg("login rejected")
			return conn.WritePacket(protocol.NewUnauthorized())
		}
		conn.SetAuthenticated(true)
		logger.Info().Int32("request_id", p.RequestID).Msg("login accepted")
		return conn.WritePacket(protocol.NewCommand(p.RequestID, ""))

	case protocol.TypeCommand:
		if !conn.Authenticated() {
			return conn.WritePacket(protocol.NewUnauthorized())
		}
		// An empty command is the end-of-response probe.
		if p.Payload == "" {
			return conn.WritePacket(protocol.NewResponse(p.RequestID, ""))
		}

		handler := s.Handler
		if handler == nil {
			handler = DefaultHandler
		}
		out := handler(p.Payload)

		logger.Debug().
			Int32("request_id", p.RequestID).
			Str("command", p.Payload).
			Int("bytes", len(out)).
			Msg("command handled")

		for _, chunk := range SplitResponse(out, protocol.MaxResponsePayload) {
			if err := conn.WritePacket(protocol.NewResponse(p.RequestID, chunk)); err != nil {
				return err
			}
		}
		return nil

	default:
		logger.Warn().Str("type", p.Type.String()).Msg("ignoring unexpected packet type")
		return nil
	}
}

// SplitResponse cuts out into pieces of at most limit bytes without
// splitting a UTF-8 sequence. Empty output yields one empty piece.
func SplitResponse(out string, limit int) []string {
	if len(out) <= limit {
		return []string{out}
	}

	var chunks []string
	for len(out) > limit {
		end := limit
		for end > 0 && !utf8.RuneStart(out[end]) {
			end--
		}
		if end == 0 {
			end = limit
		}
		chunks = append(chunks, out[:end])
		out = out[end:]
	}
	if out != "" {
		chunks = append(chunks, out)
	}
	return chunks
}
