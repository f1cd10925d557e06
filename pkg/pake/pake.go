// Package pake is the cryptographic engine behind the serialpake handshake:
// an augmented PAKE in the AuCPace style, built on SPAKE2+ over P-256.
//
// Each protocol step is a method on a single-use token. Calling a step
// consumes its token and returns the token for the next step, so steps cannot
// be skipped or replayed. Reusing a token returns ErrTokenSpent.
//
// # Protocol Flow
//
//	Client                                   Server
//	------                                   ------
//	Begin()          ------ Nonce ------>    Begin()
//	                 <----- Nonce -------
//	AgreeSSID()                              AgreeSSID()
//	StartAugmentation()
//	                 ---- Username ----->    GenerateClientInfo()
//	                 <- AugmentationInfo -
//	ReceiveAugmentationInfo()
//	GeneratePublicKey(ci)
//	                 ---- PublicKey ---->    GeneratePublicKey(ci)
//	                 <--- PublicKey -----    ReceiveClientPublicKey()
//	ReceiveServerPublicKey()
//	Authenticator()  -- Authenticator -->    ReceiveClientAuthenticator()
//	                 <- Authenticator ---
//	ReceiveServerAuthenticator()
//
// In implicit mode both sides call ImplicitKey after the public key exchange
// and no authenticators are sent.
//
// The plain and strong augmentation families are selected by the Augmenter
// passed to NewServer and NewClient.
package pake

import (
	"crypto/subtle"
	"errors"

	"github.com/backkem/serialpake/pkg/crypto"
)

// Protocol constants.
const (
	// NonceSize is the size of each side's session nonce.
	NonceSize = 16

	// SaltSize is the size of a registration salt.
	SaltSize = 16

	// SessionKeySize is the size of the established session key.
	SessionKeySize = 64

	// VerifierSize is the size of a stored verifier: w0 || L.
	VerifierSize = 32 + 65
)

var (
	contextPrefix  = []byte("serialpake v1")
	sessionKeyInfo = []byte("serialpake session key")
	strongDomain   = []byte("serialpake strong augmentation v1")
	decoySaltInfo  = []byte("serialpake decoy salt")
	decoyExpInfo   = []byte("serialpake decoy exponent")
)

// Errors.
var (
	ErrTokenSpent           = errors.New("pake: token already used")
	ErrAuthenticationFailed = errors.New("pake: authentication failed")
	ErrInvalidNonce         = errors.New("pake: invalid nonce")
	ErrInvalidParams        = errors.New("pake: invalid password hashing parameters")
	ErrInvalidRegistration  = errors.New("pake: invalid registration")
	ErrInvalidAugmentation  = errors.New("pake: invalid augmentation info")
	ErrInvalidPublicKey     = errors.New("pake: invalid public key")
	ErrInvalidVerifier      = errors.New("pake: invalid stored verifier")
	ErrWrongFamily          = errors.New("pake: message does not match augmentation family")
)

// SessionKey is the key established by a successful handshake.
type SessionKey []byte

// Equal compares two keys in constant time.
func (k SessionKey) Equal(other SessionKey) bool {
	return len(k) == len(other) && subtle.ConstantTimeCompare(k, other) == 1
}

// token enforces single use of a protocol step.
type token struct {
	used bool
}

func (t *token) consume() error {
	if t.used {
		return ErrTokenSpent
	}
	t.used = true
	return nil
}

// sessionContext binds the SPAKE2+ transcript to the agreed session and the
// channel it runs on.
func sessionContext(ssid, ci []byte) []byte {
	return crypto.SHA256Concat(contextPrefix,
		crypto.AppendLenPrefixed(nil, ssid),
		crypto.AppendLenPrefixed(nil, ci))
}

func agreeSSID(serverNonce, clientNonce []byte) []byte {
	return crypto.SHA256Concat(serverNonce, clientNonce)
}

func deriveSessionKey(shared, ssid []byte) (SessionKey, error) {
	k, err := crypto.HKDFSHA256(shared, ssid, sessionKeyInfo, SessionKeySize)
	if err != nil {
		return nil, err
	}
	return SessionKey(k), nil
}

// passwordInput is the KDF input for a username and password.
func passwordInput(username, password []byte) []byte {
	return crypto.AppendLenPrefixed(crypto.AppendLenPrefixed(nil, username), password)
}
