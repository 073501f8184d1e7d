// Package session owns the long-lived RCON connection shared by the
// console, the HTTP gateway and the one-shot commands. A Session
// serializes access to its client, publishes lifecycle and command events
// and records metrics.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/events"
	"github.com/energizer-project/rconsole/internal/metrics"
	"github.com/energizer-project/rconsole/internal/protocol"
	"github.com/energizer-project/rconsole/internal/rcon"
)

// ErrNotConnected is returned by Execute when no authenticated connection
// exists. Call Open or Reconnect first.
var ErrNotConnected = errors.New("session: not connected")

// Options configures a Session.
type Options struct {
	Address      string
	Password     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MultiPacket  bool

	// Bus and Metrics are optional.
	Bus     *events.EventBus
	Metrics *metrics.Metrics
}

// OptionsFromConfig builds Options from the server section.
func OptionsFromConfig(cfg *config.Config) Options {
	server := cfg.GetServer()
	return Options{
		Address:      cfg.Address(),
		Password:     server.Password,
		DialTimeout:  server.DialTimeout(),
		ReadTimeout:  server.ReadTimeout(),
		WriteTimeout: server.WriteTimeout(),
		MultiPacket:  server.MultiPacket,
	}
}

// Info is a snapshot of session state.
type Info struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	// LocalAddress is the client end of the current connection.
	LocalAddress string        `json:"local_address,omitempty"`
	State        string        `json:"state"`
	MultiPacket  bool          `json:"multi_packet"`
	ConnectedAt  time.Time     `json:"connected_at,omitempty"`
	Commands     uint64        `json:"commands"`
	Failures     uint64        `json:"failures"`
	LastLatency  time.Duration `json:"last_latency_ns"`
	LastError    string        `json:"last_error,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	opts   Options
	id     string
	client *rcon.Client
	logger zerolog.Logger

	connectedAt time.Time
	commands    uint64
	failures    uint64
	lastLatency time.Duration
	lastError   string
}

// New creates a disconnected session.
func New(opts Options) *Session {
	id := uuid.NewString()
	return &Session{
		opts: opts,
		id:   id,
		logger: log.With().
			Str("component", "session").
			Str("session_id", id).
			Str("address", opts.Address).
			Logger(),
	}
}

// ID returns the session id. It stays the same across reconnects.
func (s *Session) ID() string {
	return s.id
}

// Open connects and authenticates. It is a no-op when already connected.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Session) openLocked(ctx context.Context) error {
	if s.client != nil && s.client.State() == rcon.StateAuthenticated {
		return nil
	}
	s.dropLocked()

	client, err := rcon.Connect(ctx, s.opts.Address, s.opts.Password,
		rcon.WithDialTimeout(s.opts.DialTimeout),
		rcon.WithReadTimeout(s.opts.ReadTimeout),
		rcon.WithWriteTimeout(s.opts.WriteTimeout),
	)
	if err != nil {
		result := Classify(err)
		s.opts.Metrics.ObserveConnect(result)
		s.lastError = err.Error()

		if errors.Is(err, rcon.ErrInvalidPassword) {
			s.emit(ctx, events.EventSessionAuthFailed, events.SessionPayload{
				SessionID: s.id,
				Address:   s.opts.Address,
				Reason:    err.Error(),
			})
		}
		s.logger.Warn().Err(err).Str("result", result).Msg("failed to open rcon session")
		return err
	}

	s.client = client
	s.connectedAt = time.Now()
	s.lastError = ""
	s.opts.Metrics.ObserveConnect(metrics.ResultOK)
	s.emit(ctx, events.EventSessionConnected, events.SessionPayload{
		SessionID: s.id,
		Address:   s.opts.Address,
	})
	s.logger.Info().Msg("rcon session opened")
	return nil
}

// Execute sends one command and returns the server's output. Commands from
// concurrent callers are serialized. A transport or protocol failure drops
// the connection; the caller decides whether to Reconnect.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.client == nil {
		return "", ErrNotConnected
	}

	start := time.Now()
	var (
		out string
		err error
	)
	if s.opts.MultiPacket {
		out, err = s.client.ExecuteMulti(command)
	} else {
		out, err = s.client.Execute(command)
	}
	elapsed := time.Since(start)

	s.commands++
	s.lastLatency = elapsed

	payload := events.CommandPayload{
		SessionID: s.id,
		Address:   s.opts.Address,
		Command:   command,
		Response:  out,
		Duration:  elapsed,
		Multi:     s.opts.MultiPacket,
	}

	if err != nil {
		result := Classify(err)
		s.failures++
		s.lastError = err.Error()
		s.opts.Metrics.ObserveCommand(result, elapsed, 0)

		payload.Error = err.Error()
		s.emit(ctx, events.EventCommandFailed, payload)

		s.logger.Warn().Err(err).Str("command", command).Str("result", result).Msg("command failed")

		if result == metrics.ResultTransport || result == metrics.ResultProtocol {
			s.dropLocked()
		}
		return "", err
	}

	s.opts.Metrics.ObserveCommand(metrics.ResultOK, elapsed, len(out))
	s.emit(ctx, events.EventCommandExecuted, payload)

	s.logger.Debug().
		Str("command", command).
		Dur("latency", elapsed).
		Int("bytes", len(out)).
		Msg("command executed")
	return out, nil
}

// Reconnect drops the current connection, if any, and opens a new one.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.closeLocked(ctx, "reconnect")
	}
	return s.openLocked(ctx)
}

// Close ends the session. Calling Close on a disconnected session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	return s.closeLocked(context.Background(), "closed by user")
}

func (s *Session) closeLocked(ctx context.Context, reason string) error {
	err := s.client.Close()
	s.client = nil
	s.connectedAt = time.Time{}
	s.opts.Metrics.SetDisconnected()
	s.emit(ctx, events.EventSessionClosed, events.SessionPayload{
		SessionID: s.id,
		Address:   s.opts.Address,
		Reason:    reason,
	})
	s.logger.Info().Str("reason", reason).Msg("rcon session closed")
	return err
}

// dropLocked discards a broken connection.
func (s *Session) dropLocked() {
	if s.client == nil {
		return
	}
	s.closeLocked(context.Background(), "connection lost")
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := rcon.StateDisconnected.String()
	var local string
	if s.client != nil {
		state = s.client.State().String()
		local = s.client.LocalAddr().String()
	}

	return Info{
		ID:           s.id,
		Address:      s.opts.Address,
		LocalAddress: local,
		State:        state,
		MultiPacket:  s.opts.MultiPacket,
		ConnectedAt:  s.connectedAt,
		Commands:     s.commands,
		Failures:     s.failures,
		LastLatency:  s.lastLatency,
		LastError:    s.lastError,
	}
}

func (s *Session) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Emit(ctx, events.Event{
		Type:    t,
		Source:  "session",
		Payload: payload,
	})
}

// Classify maps an error from the rcon client to a metrics result label.
func Classify(err error) string {
	var (
		transportErr *rcon.TransportError
		violation    *rcon.ProtocolViolationError
		decodeErr    *protocol.DecodeError
		typeErr      *protocol.UnknownPacketTypeError
	)

	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, rcon.ErrInvalidPassword):
		return metrics.ResultAuthFailed
	case errors.Is(err, rcon.ErrUnauthorised):
		return metrics.ResultUnauthorised
	case errors.Is(err, rcon.ErrClosed), errors.Is(err, ErrNotConnected):
		return metrics.ResultClosed
	case errors.Is(err, protocol.ErrEmbeddedNUL):
		return metrics.ResultInvalid
	case errors.As(err, &transportErr):
		return metrics.ResultTransport
	case errors.As(err, &violation), errors.As(err, &decodeErr), errors.As(err, &typeErr),
		errors.Is(err, protocol.ErrInvalidPacketLength):
		return metrics.ResultProtocol
	default:
		return metrics.ResultTransport
	}
}
