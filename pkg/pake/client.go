package pake

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/serialpake/pkg/crypto/spake2p"
	"github.com/backkem/serialpake/pkg/wire"
)

// ClientOptions configures a client engine.
type ClientOptions struct {
	// Augmenter selects the augmentation family. Defaults to PlainAugmenter.
	Augmenter Augmenter

	// Rand is the randomness source. Defaults to crypto/rand.
	Rand io.Reader
}

// Client is the client side engine.
type Client struct {
	aug  Augmenter
	rand io.Reader
}

// NewClient creates a client engine.
func NewClient(opts ClientOptions) *Client {
	c := &Client{aug: opts.Augmenter, rand: opts.Rand}
	if c.aug == nil {
		c.aug = PlainAugmenter{}
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	return c
}

// Augmenter returns the configured augmentation family.
func (c *Client) Augmenter() Augmenter {
	return c.aug
}

// Register builds a registration message of the configured family.
func (c *Client) Register(username, password []byte, params Params) (wire.Message, error) {
	return c.aug.Register(username, password, params, c.rand)
}

// Begin starts a handshake and returns the client's Nonce message.
func (c *Client) Begin() (*ClientNonce, *wire.Nonce, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, nil, err
	}
	return &ClientNonce{cl: c, nonce: nonce}, &wire.Nonce{Nonce: append([]byte(nil), nonce...)}, nil
}

// ClientNonce awaits the server's nonce.
type ClientNonce struct {
	token
	cl    *Client
	nonce []byte
}

// AgreeSSID derives the session identifier from both nonces.
func (t *ClientNonce) AgreeSSID(peer *wire.Nonce) (*ClientSSID, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	if peer == nil || len(peer.Nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}
	return &ClientSSID{cl: t.cl, ssid: agreeSSID(peer.Nonce, t.nonce)}, nil
}

// ClientSSID is ready to send the username.
type ClientSSID struct {
	token
	cl   *Client
	ssid []byte
}

// SSID returns the agreed session identifier.
func (t *ClientSSID) SSID() []byte {
	return append([]byte(nil), t.ssid...)
}

// StartAugmentation builds a plain Username message.
func (t *ClientSSID) StartAugmentation(username, password []byte) (*ClientAugmenting, *wire.Username, error) {
	if t.cl.aug.Family() != wire.FamilyPlain {
		return nil, nil, ErrWrongFamily
	}
	next, msg, err := t.Augment(username, password)
	if err != nil {
		return nil, nil, err
	}
	return next, msg.(*wire.Username), nil
}

// StartAugmentationStrong builds a blinded StrongUsername message.
func (t *ClientSSID) StartAugmentationStrong(username, password []byte) (*ClientAugmenting, *wire.StrongUsername, error) {
	if t.cl.aug.Family() != wire.FamilyStrong {
		return nil, nil, ErrWrongFamily
	}
	next, msg, err := t.Augment(username, password)
	if err != nil {
		return nil, nil, err
	}
	return next, msg.(*wire.StrongUsername), nil
}

// Augment builds the username message of the configured family.
func (t *ClientSSID) Augment(username, password []byte) (*ClientAugmenting, wire.Message, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}
	pending, msg, err := t.cl.aug.Start(username, password, t.cl.rand)
	if err != nil {
		return nil, nil, err
	}
	return &ClientAugmenting{cl: t.cl, ssid: t.ssid, pending: pending}, msg, nil
}

// ClientAugmenting awaits the server's augmentation info.
type ClientAugmenting struct {
	token
	cl      *Client
	ssid    []byte
	pending *PendingAugmentation
}

// ReceiveAugmentationInfo derives the client's SPAKE2+ scalars.
func (t *ClientAugmenting) ReceiveAugmentationInfo(info *wire.AugmentationInfo) (*ClientAugmented, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	w0, w1, err := t.cl.aug.Complete(t.pending, info)
	if err != nil {
		return nil, err
	}
	return &ClientAugmented{cl: t.cl, ssid: t.ssid, username: t.pending.username, w0: w0, w1: w1}, nil
}

// ClientAugmented is ready to produce the client's public key.
type ClientAugmented struct {
	token
	cl       *Client
	ssid     []byte
	username []byte
	w0, w1   []byte
}

// GeneratePublicKey creates the client's SPAKE2+ share, bound to the
// channel identifier ci.
func (t *ClientAugmented) GeneratePublicKey(ci []byte) (*ClientKeyed, *wire.PublicKey, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}

	p, err := spake2p.NewProver(sessionContext(t.ssid, ci), t.username, nil, t.w0, t.w1)
	if err != nil {
		return nil, nil, err
	}
	p.SetRandom(t.cl.rand)

	share, err := p.GenerateShare()
	if err != nil {
		return nil, nil, err
	}
	return &ClientKeyed{ssid: t.ssid, spake: p}, &wire.PublicKey{Key: share}, nil
}

// ClientKeyed awaits the server's public key.
type ClientKeyed struct {
	token
	ssid  []byte
	spake *spake2p.SPAKE2P
}

// ReceiveServerPublicKey processes the server's share.
func (t *ClientKeyed) ReceiveServerPublicKey(pub *wire.PublicKey) (*ClientExchanged, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	if err := t.spake.ProcessPeerShare(pub.Key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &ClientExchanged{ssid: t.ssid, spake: t.spake}, nil
}

// ClientExchanged holds the shared secret.
type ClientExchanged struct {
	token
	ssid  []byte
	spake *spake2p.SPAKE2P
}

// Authenticator returns the client's authenticator for explicit mode.
func (t *ClientExchanged) Authenticator() (*ClientConfirming, *wire.Authenticator, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}
	tag, err := t.spake.Confirmation()
	if err != nil {
		return nil, nil, err
	}
	return &ClientConfirming{ssid: t.ssid, spake: t.spake}, &wire.Authenticator{Tag: tag}, nil
}

// ImplicitKey returns the session key without explicit confirmation.
func (t *ClientExchanged) ImplicitKey() (SessionKey, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	shared, err := t.spake.SharedSecret()
	if err != nil {
		return nil, err
	}
	return deriveSessionKey(shared, t.ssid)
}

// ClientConfirming awaits the server's authenticator.
type ClientConfirming struct {
	token
	ssid  []byte
	spake *spake2p.SPAKE2P
}

// ReceiveServerAuthenticator verifies the server and returns the session key.
func (t *ClientConfirming) ReceiveServerAuthenticator(a *wire.Authenticator) (SessionKey, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAuthenticationFailed
	}
	if err := t.spake.VerifyPeerConfirmation(a.Tag); err != nil {
		return nil, ErrAuthenticationFailed
	}
	shared, err := t.spake.SharedSecret()
	if err != nil {
		return nil, err
	}
	return deriveSessionKey(shared, t.ssid)
}
