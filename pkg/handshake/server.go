package handshake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/pake"
	"github.com/backkem/serialpake/pkg/wire"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Transport is the byte stream to the client. Required.
	Transport io.ReadWriter

	// Store holds registered credentials. Required.
	Store credential.Store

	// Augmenter selects plain or strong augmentation.
	// Default: pake.PlainAugmenter.
	Augmenter pake.Augmenter

	// ChannelID binds sessions to the link they run on. Both sides must
	// agree on it.
	ChannelID []byte

	// Implicit skips the authenticator round. The session key is derived
	// right after the public key exchange and a wrong password only shows
	// as mismatched keys.
	Implicit bool

	// Rand is the randomness source. Default: crypto/rand.
	Rand io.Reader

	// DecoyKey and DecoyParams configure decoy augmentation for unknown
	// usernames. See pake.ServerOptions.
	DecoyKey    []byte
	DecoyParams *pake.Params

	// BufferSize is the frame buffer size. Default: framing.DefaultCapacity.
	BufferSize int

	// SkipRegistration starts in StateSessionReady, for stores that
	// already hold a credential.
	SkipRegistration bool

	// OnEvent receives diagnostic events. Optional.
	OnEvent EventHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server is the long-lived side of the handshake. It accepts one
// registration, then runs sessions back to back for as long as Serve runs.
// Any message that arrives out of turn abandons the session in flight and a
// fresh one begins.
type Server struct {
	conn      *Conn
	engine    *pake.Server
	store     credential.Store
	channelID []byte
	implicit  bool
	onEvent   EventHandler
	log       logging.LeveledLogger

	state   atomic.Int32
	session *serverSession

	established atomic.Uint64
	restarts    atomic.Uint64
}

// serverSession is the state of one handshake attempt.
type serverSession struct {
	id       uuid.UUID
	start    time.Time
	base     ConnStats
	username []byte

	nonce     *pake.ServerNonce
	ssid      *pake.ServerSSID
	augmented *pake.ServerAugmented
	exchanged *pake.ServerExchanged
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Transport == nil {
		return nil, ErrNoTransport
	}
	if config.Store == nil {
		return nil, ErrNoStore
	}

	engine, err := pake.NewServer(pake.ServerOptions{
		Augmenter:   config.Augmenter,
		Rand:        config.Rand,
		DecoyKey:    config.DecoyKey,
		DecoyParams: config.DecoyParams,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:    engine,
		store:     config.Store,
		channelID: bytes.Clone(config.ChannelID),
		implicit:  config.Implicit,
		onEvent:   config.OnEvent,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("handshake-server")
	}

	s.conn, err = NewConn(ConnConfig{
		Transport:     config.Transport,
		Family:        engine.Augmenter().Family(),
		BufferSize:    config.BufferSize,
		OnDiscard:     s.onDiscard,
		LoggerFactory: config.LoggerFactory,
		LoggerScope:   "handshake-server-conn",
	})
	if err != nil {
		return nil, err
	}

	if config.SkipRegistration {
		s.state.Store(int32(StateSessionReady))
	} else {
		s.state.Store(int32(StateAwaitRegistration))
	}
	return s, nil
}

// State returns the current state. It is safe to call from any goroutine.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// Established returns the number of sessions that derived a key.
func (s *Server) Established() uint64 {
	return s.established.Load()
}

// Restarts returns the number of sessions abandoned before completion.
func (s *Server) Restarts() uint64 {
	return s.restarts.Load()
}

// Stats returns the connection counters. Call it from the Serve goroutine
// or after Serve has returned.
func (s *Server) Stats() ConnStats {
	return s.conn.Stats()
}

// Serve runs the server until the transport fails or ctx is done. ctx is
// only checked between reads; it does not interrupt a session step.
func (s *Server) Serve(ctx context.Context) error {
	if s.log != nil {
		s.log.Infof("serving %s family, %s mode", s.conn.Family(), s.mode())
	}

	for {
		if s.State() == StateSessionReady {
			if err := s.begin(); err != nil {
				return err
			}
			continue
		}

		msg, err := s.conn.Receive(ctx)
		if err != nil {
			if s.log != nil && ctx.Err() == nil {
				s.log.Errorf("receive failed in %s: %v", s.State(), err)
			}
			return err
		}

		if s.State() == StateAwaitRegistration {
			s.handleRegistration(msg)
			continue
		}
		if err := s.step(msg); err != nil {
			return err
		}
	}
}

func (s *Server) mode() string {
	if s.implicit {
		return "implicit"
	}
	return "explicit"
}

func (s *Server) setState(next ServerState) {
	prev := ServerState(s.state.Swap(int32(next)))
	if s.log == nil || prev == next {
		return
	}

	if sess := s.session; sess != nil {
		st := s.conn.Stats().Sub(sess.base)
		s.log.Debugf("session %s: %s -> %s (sent %d msgs/%d bytes, received %d msgs/%d bytes, %s)",
			sess.id, prev, next, st.MessagesSent, st.BytesSent, st.MessagesReceived, st.BytesReceived,
			time.Since(sess.start).Round(time.Millisecond))
	} else {
		s.log.Debugf("%s -> %s", prev, next)
	}
}

func (s *Server) emit(ev Event) {
	ev.State = s.State()
	if sess := s.session; sess != nil {
		ev.SessionID = sess.id
		ev.Stats = s.conn.Stats().Sub(sess.base)
		ev.Elapsed = time.Since(sess.start)
		if ev.Username == nil {
			ev.Username = sess.username
		}
	} else {
		ev.Stats = s.conn.Stats()
	}
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func (s *Server) onDiscard(err error) {
	t := EventDecodeError
	if !wire.IsDecodeError(err) {
		t = EventFramingError
	}
	s.emit(Event{Type: t, Err: err})
}

func (s *Server) handleRegistration(msg wire.Message) {
	aug := s.engine.Augmenter()

	if !aug.Family().Allows(msg.Kind()) || !isRegistration(msg) {
		s.rejectRegistration(nil, fmt.Errorf("%w: %s while awaiting registration", ErrUnexpectedMessage, msg.Kind()))
		return
	}
	username := registrationUsername(msg)

	ok, err := aug.Enroll(msg, s.store)
	switch {
	case err != nil:
		s.rejectRegistration(username, err)
	case !ok:
		s.rejectRegistration(username, fmt.Errorf("%w: %d > %d bytes", ErrUsernameTooLong, len(username), s.store.Capacity()))
	default:
		if s.log != nil {
			s.log.Infof("registered %q", username)
		}
		s.setState(StateSessionReady)
		s.emit(Event{Type: EventRegistered, Username: username})
	}
}

func (s *Server) rejectRegistration(username []byte, err error) {
	if s.log != nil {
		s.log.Warnf("registration rejected: %v", err)
	}
	s.emit(Event{Type: EventRegistrationRejected, Username: username, Err: err})
}

// begin starts a session and sends the server's Nonce.
func (s *Server) begin() error {
	nonce, msg, err := s.engine.Begin()
	if err != nil {
		return fmt.Errorf("handshake: begin session: %w", err)
	}

	s.session = &serverSession{
		id:    uuid.New(),
		start: time.Now(),
		base:  s.conn.Stats(),
		nonce: nonce,
	}
	if err := s.conn.Send(msg); err != nil {
		return err
	}

	s.setState(StateAwaitNonce)
	s.emit(Event{Type: EventSessionStarted})
	return nil
}

// step advances the session in flight. Protocol problems restart the
// session; only transport failures are returned.
func (s *Server) step(msg wire.Message) error {
	sess := s.session

	switch st := s.State(); st {
	case StateAwaitNonce:
		peer, ok := msg.(*wire.Nonce)
		if !ok {
			return s.unexpected(st, msg)
		}
		ssid, err := sess.nonce.AgreeSSID(peer)
		if err != nil {
			return s.restart(err)
		}
		sess.ssid = ssid
		s.setState(StateAwaitUsername)
		return nil

	case StateAwaitUsername:
		if msg.Kind() != wire.KindUsername && msg.Kind() != wire.KindStrongUsername {
			return s.unexpected(st, msg)
		}
		sess.username = messageUsername(msg)

		augmented, info, err := sess.ssid.Augment(msg, s.store)
		if err != nil {
			return s.restart(err)
		}
		if s.log != nil && !augmented.KnownUser() {
			s.log.Debugf("session %s: unknown user %q, sending decoy", sess.id, sess.username)
		}
		sess.augmented = augmented
		if err := s.conn.Send(info); err != nil {
			return err
		}
		s.setState(StateAwaitPublicKey)
		return nil

	case StateAwaitPublicKey:
		peer, ok := msg.(*wire.PublicKey)
		if !ok {
			return s.unexpected(st, msg)
		}
		keyed, pub, err := sess.augmented.GeneratePublicKey(s.channelID)
		if err != nil {
			return s.restart(err)
		}
		exchanged, err := keyed.ReceiveClientPublicKey(peer)
		if err != nil {
			return s.restart(err)
		}
		if err := s.conn.Send(pub); err != nil {
			return err
		}

		if s.implicit {
			key, err := exchanged.ImplicitKey()
			if err != nil {
				return s.restart(err)
			}
			s.finish(key)
			return nil
		}
		sess.exchanged = exchanged
		s.setState(StateAwaitAuthenticator)
		return nil

	case StateAwaitAuthenticator:
		peer, ok := msg.(*wire.Authenticator)
		if !ok {
			return s.unexpected(st, msg)
		}
		key, auth, err := sess.exchanged.ReceiveClientAuthenticator(peer)
		if errors.Is(err, pake.ErrAuthenticationFailed) {
			s.restarts.Add(1)
			if s.log != nil {
				s.log.Warnf("session %s: authentication failed for %q", sess.id, sess.username)
			}
			s.emit(Event{Type: EventAuthenticationFailed, Err: err})
			s.endSession()
			return nil
		}
		if err != nil {
			return s.restart(err)
		}
		if err := s.conn.Send(auth); err != nil {
			return err
		}
		s.finish(key)
		return nil

	default:
		return s.unexpected(st, msg)
	}
}

func (s *Server) unexpected(st ServerState, msg wire.Message) error {
	return s.restart(fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, msg.Kind(), st))
}

// restart abandons the session in flight. The message that caused it is
// dropped; the next session begins on the following loop iteration.
func (s *Server) restart(cause error) error {
	s.restarts.Add(1)
	if s.log != nil {
		s.log.Warnf("session %s: restarting: %v", s.session.id, cause)
	}
	s.emit(Event{Type: EventSessionRestarted, Err: cause})
	s.endSession()
	return nil
}

func (s *Server) finish(key pake.SessionKey) {
	s.established.Add(1)
	if s.log != nil {
		st := s.conn.Stats().Sub(s.session.base)
		s.log.Infof("session %s: established for %q, %d bytes sent, %d received, %s",
			s.session.id, s.session.username, st.BytesSent, st.BytesReceived,
			time.Since(s.session.start).Round(time.Millisecond))
	}
	s.emit(Event{Type: EventSessionEstablished, Key: key})
	s.endSession()
}

func (s *Server) endSession() {
	s.setState(StateSessionReady)
	s.session = nil
}

func isRegistration(msg wire.Message) bool {
	k := msg.Kind()
	return k == wire.KindRegistration || k == wire.KindStrongRegistration
}

func registrationUsername(msg wire.Message) []byte {
	switch m := msg.(type) {
	case *wire.Registration:
		return m.Username
	case *wire.StrongRegistration:
		return m.Username
	default:
		return nil
	}
}

func messageUsername(msg wire.Message) []byte {
	switch m := msg.(type) {
	case *wire.Username:
		return m.Username
	case *wire.StrongUsername:
		return m.Username
	default:
		return nil
	}
}
