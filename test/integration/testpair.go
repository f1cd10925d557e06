// Package integration provides test infrastructure for serialpake E2E tests.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/handshake"
	"github.com/backkem/serialpake/pkg/pake"
	"github.com/backkem/serialpake/pkg/transport"
	"github.com/pion/logging"
	"github.com/stretchr/testify/require"
)

// Link selects the byte stream between the pair.
type Link int

const (
	// LinkPipe is an in-memory pipe with optional impairments.
	LinkPipe Link = iota
	// LinkTCP is a loopback TCP connection, as with a ser2net bridge.
	LinkTCP
)

// String returns the link name.
func (l Link) String() string {
	switch l {
	case LinkPipe:
		return "pipe"
	case LinkTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// TestParams are cheap password hashing parameters for tests.
var TestParams = pake.MustParseParams("pbkdf2-sha256,i=1000")

// TestPairConfig configures the test pair creation.
type TestPairConfig struct {
	// Augmenter selects plain or strong augmentation. Default: plain.
	Augmenter pake.Augmenter

	// Implicit skips the authenticator round on both sides.
	Implicit bool

	// Link selects pipe or TCP. Default: LinkPipe.
	Link Link

	// Condition impairs a LinkPipe.
	Condition transport.NetworkCondition

	// Store is the server's credential store. Default: a SingleUser store
	// with DefaultCapacity.
	Store credential.Store

	// SkipRegistration starts the server in session mode.
	SkipRegistration bool

	// LoggerFactory for logging. If nil, uses DefaultLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// TestPair is a running Server and an idle Client connected by a link.
//
// Example usage:
//
//	pair := NewTestPair(t, TestPairConfig{})
//	defer pair.Close()
//	pair.Register("alice", "pw")
//	res, err := pair.Client.Handshake(pair.Context(), []byte("alice"), []byte("pw"))
type TestPair struct {
	Server *handshake.Server
	Client *handshake.Client
	Store  credential.Store

	// Pipe is the link when Link is LinkPipe, nil otherwise.
	Pipe *transport.Pipe

	t      *testing.T
	events chan handshake.Event
	closer func()
	cancel context.CancelFunc
	done   chan error
}

// NewTestPair connects a server and a client and starts the server loop.
func NewTestPair(t *testing.T, config TestPairConfig) *TestPair {
	t.Helper()

	if config.Augmenter == nil {
		config.Augmenter = pake.PlainAugmenter{}
	}
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	store := config.Store
	if store == nil {
		s, err := credential.NewSingleUser(credential.DefaultCapacity)
		require.NoError(t, err)
		store = s
	}

	p := &TestPair{
		Store:  store,
		t:      t,
		events: make(chan handshake.Event, 1024),
		done:   make(chan error, 1),
	}

	var serverSide, clientSide transport.Transport
	switch config.Link {
	case LinkTCP:
		serverSide, clientSide, p.closer = tcpLink(t, loggerFactory)
	default:
		p.Pipe = transport.NewPipe(transport.PipeConfig{Condition: config.Condition})
		serverSide, clientSide = p.Pipe.Conn0(), p.Pipe.Conn1()
		p.closer = func() { p.Pipe.Close() }
	}

	var err error
	p.Server, err = handshake.NewServer(handshake.ServerConfig{
		Transport:        serverSide,
		Store:            store,
		Augmenter:        config.Augmenter,
		ChannelID:        []byte("integration"),
		Implicit:         config.Implicit,
		DecoyParams:      &TestParams,
		SkipRegistration: config.SkipRegistration,
		OnEvent:          p.onEvent,
		LoggerFactory:    loggerFactory,
	})
	require.NoError(t, err)

	p.Client, err = handshake.NewClient(handshake.ClientConfig{
		Transport:     clientSide,
		Augmenter:     config.Augmenter,
		ChannelID:     []byte("integration"),
		Implicit:      config.Implicit,
		LoggerFactory: loggerFactory,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		p.done <- p.Server.Serve(ctx)
	}()
	return p
}

func tcpLink(t *testing.T, lf logging.LoggerFactory) (server, client transport.Transport, closer func()) {
	t.Helper()

	ln, err := transport.ListenTCP(transport.TCPConfig{
		Address:       "127.0.0.1:0",
		ReadTimeout:   20 * time.Millisecond,
		LoggerFactory: lf,
	})
	require.NoError(t, err)
	defer ln.Close()

	c, err := transport.DialTCP(transport.TCPConfig{
		Address:       ln.Addr().String(),
		ReadTimeout:   20 * time.Millisecond,
		LoggerFactory: lf,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := ln.Accept(ctx)
	require.NoError(t, err)

	return s, c, func() {
		c.Close()
		s.Close()
	}
}

func (p *TestPair) onEvent(ev handshake.Event) {
	select {
	case p.events <- ev:
	default:
	}
}

// Register sends a registration and waits for the server to store it.
func (p *TestPair) Register(username, password string) {
	p.t.Helper()
	err := p.Client.Register(p.Context(), []byte(username), []byte(password), TestParams)
	require.NoError(p.t, err)
	p.WaitEvent(handshake.EventRegistered)
}

// WaitEvent returns the next server event of type typ, skipping others.
func (p *TestPair) WaitEvent(typ handshake.EventType) handshake.Event {
	p.t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-p.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			require.FailNowf(p.t, "missing event", "no %s event from server", typ)
			return handshake.Event{}
		}
	}
}

// WaitEstablished returns the server's SessionEstablished event for key.
func (p *TestPair) WaitEstablished(key pake.SessionKey) handshake.Event {
	p.t.Helper()
	for {
		ev := p.WaitEvent(handshake.EventSessionEstablished)
		if ev.Key.Equal(key) {
			return ev
		}
	}
}

// Context returns a context for operations on this pair.
func (p *TestPair) Context() context.Context {
	return p.ContextWithTimeout(10 * time.Second)
}

// ContextWithTimeout returns a context with custom timeout.
func (p *TestPair) ContextWithTimeout(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	p.t.Cleanup(cancel)
	return ctx
}

// Close stops the server loop and closes the link. It returns the error
// Serve returned.
func (p *TestPair) Close() error {
	p.cancel()
	var err error
	select {
	case err = <-p.done:
	case <-time.After(5 * time.Second):
		p.t.Error("server did not stop")
	}
	p.closer()
	return err
}
