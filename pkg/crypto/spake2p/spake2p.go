// Package spake2p implements the SPAKE2+ augmented PAKE (RFC 9383) over
// P-256 with SHA-256, HKDF and HMAC.
//
// Only the Prover knows the password-derived scalars (w0, w1). The Verifier
// holds a registration record (w0, L = w1*G) and never sees w1.
//
// Protocol flow:
//
//	Prover (client)                    Verifier (server)
//	---------------                    -----------------
//	NewProver(w0, w1)                  NewVerifier(w0, L)
//	X = GenerateShare() ----X---->     Y = GenerateShare()
//	                    <---Y----      ProcessPeerShare(X)
//	ProcessPeerShare(Y)
//	confirmP = Confirmation() --confirmP-->
//	                                   VerifyPeerConfirmation(confirmP)
//	                    <-confirmV--   confirmV = Confirmation()
//	VerifyPeerConfirmation(confirmV)
//	K = SharedSecret()                 K = SharedSecret()
package spake2p

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"

	"github.com/backkem/serialpake/pkg/crypto"
)

const (
	// GroupSizeBytes is the size of a P-256 scalar.
	GroupSizeBytes = crypto.P256ScalarSizeBytes

	// PointSizeBytes is the size of an uncompressed P-256 point.
	PointSizeBytes = crypto.P256PointSizeBytes

	// WsSizeBytes is the size of each of w0s/w1s (32 + 8 for bias reduction).
	WsSizeBytes = 40

	// SharedKeySizeBytes is the size of the established shared secret.
	SharedKeySizeBytes = 32

	// ConfirmationSizeBytes is the size of a key confirmation MAC.
	ConfirmationSizeBytes = 32
)

// M and N are the RFC 9383 P-256 points with unknown discrete logarithm.
var (
	pointMBytes = []byte{
		0x04, 0x88, 0x6e, 0x2f, 0x97, 0xac, 0xe4, 0x6e, 0x55, 0xba, 0x9d, 0xd7, 0x24, 0x25, 0x79, 0xf2, 0x99,
		0x3b, 0x64, 0xe1, 0x6e, 0xf3, 0xdc, 0xab, 0x95, 0xaf, 0xd4, 0x97, 0x33, 0x3d, 0x8f, 0xa1, 0x2f, 0x5f,
		0xf3, 0x55, 0x16, 0x3e, 0x43, 0xce, 0x22, 0x4e, 0x0b, 0x0e, 0x65, 0xff, 0x02, 0xac, 0x8e, 0x5c, 0x7b,
		0xe0, 0x94, 0x19, 0xc7, 0x85, 0xe0, 0xca, 0x54, 0x7d, 0x55, 0xa1, 0x2e, 0x2d, 0x20,
	}
	pointNBytes = []byte{
		0x04, 0xd8, 0xbb, 0xd6, 0xc6, 0x39, 0xc6, 0x29, 0x37, 0xb0, 0x4d, 0x99, 0x7f, 0x38, 0xc3, 0x77, 0x07,
		0x19, 0xc6, 0x29, 0xd7, 0x01, 0x4d, 0x49, 0xa2, 0x4b, 0x4f, 0x98, 0xba, 0xa1, 0x29, 0x2b, 0x49, 0x07,
		0xd6, 0x0a, 0xa6, 0xbf, 0xad, 0xe4, 0x50, 0x08, 0xa6, 0x36, 0x33, 0x7f, 0x51, 0x68, 0xc6, 0x4d, 0x9b,
		0xd3, 0x60, 0x34, 0x80, 0x8c, 0xd5, 0x64, 0x49, 0x0b, 0x1e, 0x65, 0x6e, 0xdb, 0xe7,
	}

	pointM = crypto.MustDecodePoint(pointMBytes)
	pointN = crypto.MustDecodePoint(pointNBytes)
)

// Key schedule labels from RFC 9383 Section 3.4.
var (
	confirmationKeysInfo = []byte("ConfirmationKeys")
	sharedKeyInfo        = []byte("SharedKey")
)

// Role is the SPAKE2+ participant role.
type Role int

const (
	// RoleProver knows the password.
	RoleProver Role = iota
	// RoleVerifier holds the registration record.
	RoleVerifier
)

type state int

const (
	stateInit state = iota
	stateShareGenerated
	stateSharedSecretComputed
	stateConfirmed
)

// Errors
var (
	ErrInvalidWsSize       = errors.New("spake2p: ws must be 80 bytes")
	ErrInvalidW0Size       = errors.New("spake2p: w0 must be 32 bytes")
	ErrInvalidW1Size       = errors.New("spake2p: w1 must be 32 bytes")
	ErrInvalidLSize        = errors.New("spake2p: L must be 65 bytes (uncompressed point)")
	ErrInvalidShareSize    = errors.New("spake2p: share must be 65 bytes (uncompressed point)")
	ErrInvalidPointOnCurve = errors.New("spake2p: point is not on the curve")
	ErrInvalidState        = errors.New("spake2p: invalid protocol state for this operation")
	ErrConfirmationFailed  = errors.New("spake2p: key confirmation failed")
)

// ComputeW0W1 splits 80 bytes of password-derived output into the scalars
// w0 and w1, each reduced mod n and encoded as 32 bytes.
func ComputeW0W1(ws []byte) (w0, w1 []byte, err error) {
	if len(ws) != 2*WsSizeBytes {
		return nil, nil, ErrInvalidWsSize
	}
	w0 = crypto.ScalarBytes(crypto.ReduceScalar(ws[:WsSizeBytes]))
	w1 = crypto.ScalarBytes(crypto.ReduceScalar(ws[WsSizeBytes:]))
	return w0, w1, nil
}

// ComputeL returns the registration point L = w1*G.
func ComputeL(w1 []byte) ([]byte, error) {
	if len(w1) != GroupSizeBytes {
		return nil, ErrInvalidW1Size
	}
	return crypto.BaseMul(new(big.Int).SetBytes(w1)).Bytes(), nil
}

// SPAKE2P is one side of a single SPAKE2+ exchange.
type SPAKE2P struct {
	role       Role
	context    []byte
	idProver   []byte
	idVerifier []byte

	w0 *big.Int
	w1 *big.Int      // Prover only
	L  *crypto.Point // Verifier only

	myRandom  *big.Int
	myShare   []byte
	peerShare []byte
	Z         []byte
	V         []byte

	kConfirmP []byte
	kConfirmV []byte
	kShared   []byte

	state state
	rand  io.Reader
}

// NewProver creates the password-holding side.
//
// Parameters:
//   - context: Protocol context bound into the transcript
//   - idProver: Prover identity (may be empty)
//   - idVerifier: Verifier identity (may be empty)
//   - w0, w1: 32-byte scalars from ComputeW0W1
func NewProver(context, idProver, idVerifier, w0, w1 []byte) (*SPAKE2P, error) {
	if len(w0) != GroupSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(w1) != GroupSizeBytes {
		return nil, ErrInvalidW1Size
	}

	return &SPAKE2P{
		role:       RoleProver,
		context:    copyBytes(context),
		idProver:   copyBytes(idProver),
		idVerifier: copyBytes(idVerifier),
		w0:         new(big.Int).SetBytes(w0),
		w1:         new(big.Int).SetBytes(w1),
		rand:       rand.Reader,
	}, nil
}

// NewVerifier creates the record-holding side. L is the 65-byte point from
// ComputeL.
func NewVerifier(context, idProver, idVerifier, w0, L []byte) (*SPAKE2P, error) {
	if len(w0) != GroupSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(L) != PointSizeBytes {
		return nil, ErrInvalidLSize
	}
	lPoint, err := crypto.DecodePoint(L)
	if err != nil {
		return nil, ErrInvalidPointOnCurve
	}

	return &SPAKE2P{
		role:       RoleVerifier,
		context:    copyBytes(context),
		idProver:   copyBytes(idProver),
		idVerifier: copyBytes(idVerifier),
		w0:         new(big.Int).SetBytes(w0),
		L:          lPoint,
		rand:       rand.Reader,
	}, nil
}

// Role returns the participant role.
func (s *SPAKE2P) Role() Role {
	return s.role
}

// GenerateShare generates this party's public share.
// Prover: X = x*G + w0*M. Verifier: Y = y*G + w0*N.
func (s *SPAKE2P) GenerateShare() ([]byte, error) {
	if s.state != stateInit {
		return nil, ErrInvalidState
	}

	r, err := crypto.RandomScalar(s.rand)
	if err != nil {
		return nil, err
	}
	s.myRandom = r

	blind := pointN
	if s.role == RoleProver {
		blind = pointM
	}
	s.myShare = crypto.BaseMul(r).Add(blind.Mul(s.w0)).Bytes()
	s.state = stateShareGenerated

	return copyBytes(s.myShare), nil
}

// ProcessPeerShare validates the peer's share and derives the session keys.
func (s *SPAKE2P) ProcessPeerShare(peerShare []byte) error {
	if s.state != stateShareGenerated {
		return ErrInvalidState
	}
	if len(peerShare) != PointSizeBytes {
		return ErrInvalidShareSize
	}
	peer, err := crypto.DecodePoint(peerShare)
	if err != nil {
		return ErrInvalidPointOnCurve
	}

	var z, v *crypto.Point
	if s.role == RoleProver {
		// Z = x*(Y - w0*N), V = w1*(Y - w0*N)
		unblinded := peer.Sub(pointN.Mul(s.w0))
		z = unblinded.Mul(s.myRandom)
		v = unblinded.Mul(s.w1)
	} else {
		// Z = y*(X - w0*M), V = y*L
		unblinded := peer.Sub(pointM.Mul(s.w0))
		z = unblinded.Mul(s.myRandom)
		v = s.L.Mul(s.myRandom)
	}
	if z.IsIdentity() || v.IsIdentity() {
		return ErrInvalidPointOnCurve
	}

	s.peerShare = copyBytes(peerShare)
	s.Z = z.Bytes()
	s.V = v.Bytes()

	if err := s.deriveKeys(); err != nil {
		return err
	}
	s.state = stateSharedSecretComputed
	return nil
}

// Confirmation returns this party's key confirmation MAC.
// Prover: HMAC(K_confirmP, Y). Verifier: HMAC(K_confirmV, X).
func (s *SPAKE2P) Confirmation() ([]byte, error) {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return nil, ErrInvalidState
	}
	if s.role == RoleProver {
		return crypto.HMACSHA256(s.kConfirmP, s.peerShare), nil
	}
	return crypto.HMACSHA256(s.kConfirmV, s.peerShare), nil
}

// VerifyPeerConfirmation checks the peer's key confirmation MAC.
func (s *SPAKE2P) VerifyPeerConfirmation(peerConfirm []byte) error {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return ErrInvalidState
	}

	var expected []byte
	if s.role == RoleProver {
		expected = crypto.HMACSHA256(s.kConfirmV, s.myShare)
	} else {
		expected = crypto.HMACSHA256(s.kConfirmP, s.myShare)
	}
	if !crypto.HMACEqual(expected, peerConfirm) {
		return ErrConfirmationFailed
	}

	s.state = stateConfirmed
	return nil
}

// SharedSecret returns K_shared. Before confirmation it is only implicitly
// authenticated.
func (s *SPAKE2P) SharedSecret() ([]byte, error) {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return nil, ErrInvalidState
	}
	return copyBytes(s.kShared), nil
}

// Confirmed reports whether the peer's confirmation was verified.
func (s *SPAKE2P) Confirmed() bool {
	return s.state == stateConfirmed
}

// deriveKeys runs the RFC 9383 key schedule:
//
//	K_main = Hash(TT)
//	K_confirmP || K_confirmV = KDF(nil, K_main, "ConfirmationKeys")
//	K_shared = KDF(nil, K_main, "SharedKey")
func (s *SPAKE2P) deriveKeys() error {
	kMain := crypto.SHA256Slice(s.buildTranscript())

	kc, err := crypto.HKDFSHA256(kMain, nil, confirmationKeysInfo, 2*crypto.SHA256LenBytes)
	if err != nil {
		return err
	}
	s.kConfirmP = kc[:crypto.SHA256LenBytes]
	s.kConfirmV = kc[crypto.SHA256LenBytes:]

	s.kShared, err = crypto.HKDFSHA256(kMain, nil, sharedKeyInfo, SharedKeySizeBytes)
	return err
}

// buildTranscript builds TT, each field with an 8-byte little-endian
// length prefix:
//
//	Context || idProver || idVerifier || M || N || X || Y || Z || V || w0
func (s *SPAKE2P) buildTranscript() []byte {
	x, y := s.peerShare, s.myShare
	if s.role == RoleProver {
		x, y = s.myShare, s.peerShare
	}

	var tt []byte
	for _, field := range [][]byte{
		s.context, s.idProver, s.idVerifier,
		pointMBytes, pointNBytes,
		x, y, s.Z, s.V,
		crypto.ScalarBytes(s.w0),
	} {
		tt = crypto.AppendLenPrefixed(tt, field)
	}
	return tt
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// SetRandom sets the random source for testing purposes.
func (s *SPAKE2P) SetRandom(r io.Reader) {
	s.rand = r
}
