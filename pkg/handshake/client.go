package handshake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/backkem/serialpake/pkg/pake"
	"github.com/backkem/serialpake/pkg/wire"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Transport is the byte stream to the server. Required.
	Transport io.ReadWriter

	// Augmenter selects plain or strong augmentation. It must match the
	// server's. Default: pake.PlainAugmenter.
	Augmenter pake.Augmenter

	// ChannelID binds sessions to the link. It must match the server's.
	ChannelID []byte

	// Implicit skips the authenticator round. It must match the server's.
	Implicit bool

	// Rand is the randomness source. Default: crypto/rand.
	Rand io.Reader

	// BufferSize is the frame buffer size. Default: framing.DefaultCapacity.
	BufferSize int

	// OnEvent receives diagnostic events. Optional.
	OnEvent EventHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Result describes a completed handshake.
type Result struct {
	Key       pake.SessionKey
	SessionID uuid.UUID
	Stats     ConnStats
	Elapsed   time.Duration
}

// Client drives the handshake from the initiating side. Each Handshake call
// is one attempt; any deviation from the expected sequence fails it.
//
// Reuse one Client for consecutive attempts over the same transport: the
// server's next Nonce may already sit in the Client's receive buffer.
type Client struct {
	conn      *Conn
	engine    *pake.Client
	channelID []byte
	implicit  bool
	onEvent   EventHandler
	log       logging.LeveledLogger

	// pendingNonce is a server Nonce that arrived during a failed attempt.
	// It opens the server's next session and is used by the next attempt.
	pendingNonce *wire.Nonce

	// current is the session id of the attempt in flight.
	current uuid.UUID
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Transport == nil {
		return nil, ErrNoTransport
	}

	engine := pake.NewClient(pake.ClientOptions{
		Augmenter: config.Augmenter,
		Rand:      config.Rand,
	})

	c := &Client{
		engine:    engine,
		channelID: bytes.Clone(config.ChannelID),
		implicit:  config.Implicit,
		onEvent:   config.OnEvent,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("handshake-client")
	}

	conn, err := NewConn(ConnConfig{
		Transport:     config.Transport,
		Family:        engine.Augmenter().Family(),
		BufferSize:    config.BufferSize,
		OnDiscard:     c.onDiscard,
		LoggerFactory: config.LoggerFactory,
		LoggerScope:   "handshake-client-conn",
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Stats returns the connection counters.
func (c *Client) Stats() ConnStats {
	return c.conn.Stats()
}

// Register sends one registration message. The server does not answer;
// a rejected registration only shows as a failed handshake later.
func (c *Client) Register(ctx context.Context, username, password []byte, params pake.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(username) == 0 {
		return ErrEmptyUsername
	}

	msg, err := c.engine.Register(username, password, params)
	if err != nil {
		return err
	}
	if err := c.conn.Send(msg); err != nil {
		return err
	}
	if c.log != nil {
		c.log.Infof("sent %s for %q with %s", msg.Kind(), username, params)
	}
	return nil
}

// Handshake runs one handshake attempt. It returns
// pake.ErrAuthenticationFailed when the server does not confirm the
// password and ErrUnexpectedMessage when the server deviates from the
// sequence. ctx is checked between reads.
func (c *Client) Handshake(ctx context.Context, username, password []byte) (*Result, error) {
	if len(username) == 0 {
		return nil, ErrEmptyUsername
	}

	c.current = uuid.New()
	start := time.Now()
	base := c.conn.Stats()
	defer func() { c.current = uuid.Nil }()

	c.emit(Event{Type: EventSessionStarted, Username: username}, base, start)

	key, err := c.run(ctx, username, password)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("handshake %s failed: %v", c.current, err)
		}
		if isAuthFailure(err) {
			c.emit(Event{Type: EventAuthenticationFailed, Username: username, Err: err}, base, start)
		}
		return nil, err
	}

	res := &Result{
		Key:       key,
		SessionID: c.current,
		Stats:     c.conn.Stats().Sub(base),
		Elapsed:   time.Since(start),
	}
	if c.log != nil {
		c.log.Infof("handshake %s established, %d bytes sent, %d received, %s",
			res.SessionID, res.Stats.BytesSent, res.Stats.BytesReceived, res.Elapsed.Round(time.Millisecond))
	}
	c.emit(Event{Type: EventSessionEstablished, Username: username, Key: key}, base, start)
	return res, nil
}

func (c *Client) run(ctx context.Context, username, password []byte) (pake.SessionKey, error) {
	nonce, nonceMsg, err := c.engine.Begin()
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(nonceMsg); err != nil {
		return nil, err
	}

	serverNonce, err := c.awaitNonce(ctx)
	if err != nil {
		return nil, err
	}
	ssid, err := nonce.AgreeSSID(serverNonce)
	if err != nil {
		return nil, err
	}

	augmenting, userMsg, err := ssid.Augment(username, password)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(userMsg); err != nil {
		return nil, err
	}

	info, err := expect[*wire.AugmentationInfo](ctx, c)
	if err != nil {
		return nil, err
	}
	augmented, err := augmenting.ReceiveAugmentationInfo(info)
	if err != nil {
		return nil, err
	}

	keyed, pub, err := augmented.GeneratePublicKey(c.channelID)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(pub); err != nil {
		return nil, err
	}

	serverPub, err := expect[*wire.PublicKey](ctx, c)
	if err != nil {
		return nil, err
	}
	exchanged, err := keyed.ReceiveServerPublicKey(serverPub)
	if err != nil {
		return nil, err
	}

	if c.implicit {
		return exchanged.ImplicitKey()
	}

	confirming, auth, err := exchanged.Authenticator()
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(auth); err != nil {
		return nil, err
	}

	serverAuth, err := expect[*wire.Authenticator](ctx, c)
	if err != nil {
		if c.pendingNonce != nil {
			// The server restarted instead of confirming.
			return nil, fmt.Errorf("%w: server started a new session", pake.ErrAuthenticationFailed)
		}
		return nil, err
	}
	return confirming.ReceiveServerAuthenticator(serverAuth)
}

func (c *Client) awaitNonce(ctx context.Context) (*wire.Nonce, error) {
	if n := c.pendingNonce; n != nil {
		c.pendingNonce = nil
		return n, nil
	}
	return expect[*wire.Nonce](ctx, c)
}

// expect receives the next message and requires it to be a T. A server
// Nonce arriving out of turn is kept for the next attempt.
func expect[T wire.Message](ctx context.Context, c *Client) (T, error) {
	var zero T

	msg, err := c.conn.Receive(ctx)
	if err != nil {
		return zero, err
	}
	if m, ok := msg.(T); ok {
		return m, nil
	}
	if n, ok := msg.(*wire.Nonce); ok {
		c.pendingNonce = n
	}
	return zero, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, msg.Kind(), zero.Kind())
}

func (c *Client) emit(ev Event, base ConnStats, start time.Time) {
	if c.onEvent == nil {
		return
	}
	ev.SessionID = c.current
	ev.Stats = c.conn.Stats().Sub(base)
	ev.Elapsed = time.Since(start)
	c.onEvent(ev)
}

func (c *Client) onDiscard(err error) {
	t := EventDecodeError
	if !wire.IsDecodeError(err) {
		t = EventFramingError
	}
	if c.onEvent != nil {
		c.onEvent(Event{Type: t, SessionID: c.current, Err: err, Stats: c.conn.Stats()})
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, pake.ErrAuthenticationFailed)
}
