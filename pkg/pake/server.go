package pake

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/crypto/spake2p"
	"github.com/backkem/serialpake/pkg/wire"
)

// ServerOptions configures a server engine.
type ServerOptions struct {
	// Augmenter selects the augmentation family. Defaults to PlainAugmenter.
	Augmenter Augmenter

	// Rand is the randomness source. Defaults to crypto/rand.
	Rand io.Reader

	// DecoyKey keys the decoy augmentation for unknown users. A random key
	// is generated when empty, which makes decoys stable per process only.
	DecoyKey []byte

	// DecoyParams are advertised for unknown users. Defaults to DefaultParams.
	DecoyParams *Params
}

// Server is the server side engine. It is stateless between sessions; each
// Begin starts an independent chain of tokens.
type Server struct {
	aug   Augmenter
	rand  io.Reader
	decoy Decoy
}

// NewServer creates a server engine.
func NewServer(opts ServerOptions) (*Server, error) {
	s := &Server{
		aug:  opts.Augmenter,
		rand: opts.Rand,
	}
	if s.aug == nil {
		s.aug = PlainAugmenter{}
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}

	s.decoy.Params = DefaultParams
	if opts.DecoyParams != nil {
		if err := opts.DecoyParams.Validate(); err != nil {
			return nil, err
		}
		s.decoy.Params = *opts.DecoyParams
	}

	s.decoy.Key = append([]byte(nil), opts.DecoyKey...)
	if len(s.decoy.Key) == 0 {
		s.decoy.Key = make([]byte, 32)
		if _, err := io.ReadFull(s.rand, s.decoy.Key); err != nil {
			return nil, fmt.Errorf("pake: decoy key: %w", err)
		}
	}
	return s, nil
}

// Augmenter returns the configured augmentation family.
func (s *Server) Augmenter() Augmenter {
	return s.aug
}

// Begin starts a session and returns the server's Nonce message.
func (s *Server) Begin() (*ServerNonce, *wire.Nonce, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, nil, err
	}
	return &ServerNonce{srv: s, nonce: nonce}, &wire.Nonce{Nonce: append([]byte(nil), nonce...)}, nil
}

// ServerNonce awaits the client's nonce.
type ServerNonce struct {
	token
	srv   *Server
	nonce []byte
}

// AgreeSSID derives the session identifier from both nonces.
func (t *ServerNonce) AgreeSSID(peer *wire.Nonce) (*ServerSSID, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	if peer == nil || len(peer.Nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}
	return &ServerSSID{srv: t.srv, ssid: agreeSSID(t.nonce, peer.Nonce)}, nil
}

// ServerSSID awaits the client's username.
type ServerSSID struct {
	token
	srv  *Server
	ssid []byte
}

// SSID returns the agreed session identifier.
func (t *ServerSSID) SSID() []byte {
	return append([]byte(nil), t.ssid...)
}

// GenerateClientInfo answers a plain Username.
func (t *ServerSSID) GenerateClientInfo(username []byte, store credential.Store) (*ServerAugmented, *wire.AugmentationInfo, error) {
	return t.Augment(&wire.Username{Username: username}, store)
}

// GenerateClientInfoStrong answers a StrongUsername.
func (t *ServerSSID) GenerateClientInfoStrong(username, blinded []byte, store credential.Store) (*ServerAugmented, *wire.AugmentationInfo, error) {
	return t.Augment(&wire.StrongUsername{Username: username, Blinded: blinded}, store)
}

// Augment answers a username message of the configured family.
func (t *ServerSSID) Augment(req wire.Message, store credential.Store) (*ServerAugmented, *wire.AugmentationInfo, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}
	if !t.srv.aug.Family().Allows(req.Kind()) {
		return nil, nil, fmt.Errorf("%w: %s", ErrWrongFamily, req.Kind())
	}

	aug, err := t.srv.aug.Augment(req, store, t.srv.decoy, t.srv.rand)
	if err != nil {
		return nil, nil, err
	}
	return &ServerAugmented{srv: t.srv, ssid: t.ssid, aug: aug}, aug.Info, nil
}

// ServerAugmented is ready to produce the server's public key.
type ServerAugmented struct {
	token
	srv  *Server
	ssid []byte
	aug  *Augmentation
}

// KnownUser reports whether the username matched a stored record.
func (t *ServerAugmented) KnownUser() bool {
	return t.aug.Known
}

// GeneratePublicKey creates the server's SPAKE2+ share, bound to the
// channel identifier ci.
func (t *ServerAugmented) GeneratePublicKey(ci []byte) (*ServerKeyed, *wire.PublicKey, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}

	v, err := spake2p.NewVerifier(sessionContext(t.ssid, ci), t.aug.Username, nil, t.aug.W0, t.aug.L)
	if err != nil {
		return nil, nil, err
	}
	v.SetRandom(t.srv.rand)

	share, err := v.GenerateShare()
	if err != nil {
		return nil, nil, err
	}
	return &ServerKeyed{ssid: t.ssid, spake: v}, &wire.PublicKey{Key: share}, nil
}

// ServerKeyed awaits the client's public key.
type ServerKeyed struct {
	token
	ssid  []byte
	spake *spake2p.SPAKE2P
}

// ReceiveClientPublicKey processes the client's share.
func (t *ServerKeyed) ReceiveClientPublicKey(pub *wire.PublicKey) (*ServerExchanged, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	if err := t.spake.ProcessPeerShare(pub.Key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &ServerExchanged{ssid: t.ssid, spake: t.spake}, nil
}

// ServerExchanged holds the shared secret, awaiting confirmation.
type ServerExchanged struct {
	token
	ssid  []byte
	spake *spake2p.SPAKE2P
}

// ReceiveClientAuthenticator verifies the client's authenticator and, on
// success, returns the session key and the server's authenticator.
func (t *ServerExchanged) ReceiveClientAuthenticator(a *wire.Authenticator) (SessionKey, *wire.Authenticator, error) {
	if err := t.consume(); err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, ErrAuthenticationFailed
	}
	if err := t.spake.VerifyPeerConfirmation(a.Tag); err != nil {
		return nil, nil, ErrAuthenticationFailed
	}

	tag, err := t.spake.Confirmation()
	if err != nil {
		return nil, nil, err
	}
	key, err := t.key()
	if err != nil {
		return nil, nil, err
	}
	return key, &wire.Authenticator{Tag: tag}, nil
}

// ImplicitKey returns the session key without explicit confirmation. A
// wrong password yields a key that does not match the client's.
func (t *ServerExchanged) ImplicitKey() (SessionKey, error) {
	if err := t.consume(); err != nil {
		return nil, err
	}
	return t.key()
}

func (t *ServerExchanged) key() (SessionKey, error) {
	shared, err := t.spake.SharedSecret()
	if err != nil {
		return nil, err
	}
	return deriveSessionKey(shared, t.ssid)
}
