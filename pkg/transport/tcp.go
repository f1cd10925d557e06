package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pion/logging"
)

// TCPConfig configures a TCP stream transport.
type TCPConfig struct {
	// Address is the host:port to dial or listen on.
	Address string

	// DialTimeout bounds connecting. Default: DefaultDialTimeout.
	DialTimeout time.Duration

	// ReadTimeout bounds a single Read. A Read that times out returns (0, nil).
	// Default: DefaultReadTimeout.
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Stream is a Transport over a net.Conn, such as a TCP connection to a
// ser2net style bridge.
type Stream struct {
	conn        net.Conn
	readTimeout time.Duration
	log         logging.LeveledLogger

	wmu sync.Mutex
}

// NewStream wraps conn. A readTimeout <= 0 selects DefaultReadTimeout.
func NewStream(conn net.Conn, readTimeout time.Duration, loggerFactory logging.LoggerFactory) *Stream {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	s := &Stream{conn: conn, readTimeout: readTimeout}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("transport-tcp")
	}
	return s
}

// DialTCP connects to config.Address.
func DialTCP(config TCPConfig) (*Stream, error) {
	if config.Address == "" {
		return nil, ErrInvalidEndpoint
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}

	conn, err := net.DialTimeout("tcp", config.Address, config.DialTimeout)
	if err != nil {
		return nil, err
	}

	s := NewStream(conn, config.ReadTimeout, config.LoggerFactory)
	if s.log != nil {
		s.log.Infof("connected to %s", conn.RemoteAddr())
	}
	return s, nil
}

// Read reads from the connection. It returns (0, nil) when the read timeout
// expires with nothing received.
func (s *Stream) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, err
	}

	n, err := s.conn.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	case errors.Is(err, net.ErrClosed):
		return n, ErrClosed
	default:
		return n, err
	}
}

// Write writes p to the connection.
func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	n, err := s.conn.Write(p)
	if errors.Is(err, net.ErrClosed) {
		return n, ErrClosed
	}
	return n, err
}

// Close closes the connection.
func (s *Stream) Close() error {
	if s.log != nil {
		s.log.Infof("closing connection to %s", s.conn.RemoteAddr())
	}
	return s.conn.Close()
}

// RemoteAddr returns the peer address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// TCPListener accepts Stream transports.
type TCPListener struct {
	listener net.Listener
	config   TCPConfig
	log      logging.LeveledLogger
}

// ListenTCP listens on config.Address. An empty address picks an ephemeral
// port on all interfaces.
func ListenTCP(config TCPConfig) (*TCPListener, error) {
	addr := config.Address
	if addr == "" {
		addr = ":0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &TCPListener{listener: listener, config: config}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport-tcp")
		l.log.Infof("listening on %s", listener.Addr())
	}
	return l, nil
}

// Accept waits for one connection. It returns ctx.Err() if ctx is done
// first; the listener is closed in that case.
func (l *TCPListener) Accept(ctx context.Context) (*Stream, error) {
	stop := context.AfterFunc(ctx, func() {
		l.listener.Close()
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}

	if l.log != nil {
		l.log.Infof("accepted %s", conn.RemoteAddr())
	}
	return NewStream(conn, l.config.ReadTimeout, l.config.LoggerFactory), nil
}

// Addr returns the listening address.
func (l *TCPListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops listening.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}
