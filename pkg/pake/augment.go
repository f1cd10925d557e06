package pake

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/backkem/serialpake/pkg/credential"
	"github.com/backkem/serialpake/pkg/crypto"
	"github.com/backkem/serialpake/pkg/crypto/spake2p"
	"github.com/backkem/serialpake/pkg/wire"
	"github.com/fxamacker/cbor/v2"
)

// Augmenter is one augmentation family: how a password becomes a stored
// record, and how the server hands the client what it needs to re-derive
// its secrets at login.
//
// PlainAugmenter stores a salt next to the verifier and reveals it to
// whoever asks. StrongAugmenter stores a secret exponent instead and runs an
// oblivious exchange, so the salt is never on the wire.
type Augmenter interface {
	// Family returns the wire family this augmenter speaks.
	Family() wire.Family

	// Register builds the client's registration message.
	Register(username, password []byte, params Params, rand io.Reader) (wire.Message, error)

	// Enroll stores a registration message. It reports false without
	// touching the store when the username exceeds the store capacity.
	Enroll(msg wire.Message, store credential.Store) (bool, error)

	// Start builds the client's username message for a login.
	Start(username, password []byte, rand io.Reader) (*PendingAugmentation, wire.Message, error)

	// Augment answers a username message on the server. Unknown users get
	// a decoy augmentation derived from d.
	Augment(req wire.Message, store credential.Store, d Decoy, rand io.Reader) (*Augmentation, error)

	// Complete turns the server's answer into the client's SPAKE2+ scalars.
	Complete(p *PendingAugmentation, info *wire.AugmentationInfo) (w0, w1 []byte, err error)
}

// Augmentation is the server's view of a user for one session.
type Augmentation struct {
	Username []byte
	W0       []byte
	L        []byte
	Info     *wire.AugmentationInfo

	// Known is false when the augmentation is a decoy.
	Known bool
}

// PendingAugmentation is the client's state between Start and Complete.
type PendingAugmentation struct {
	username []byte
	password []byte
	blind    *big.Int // strong only
}

// Decoy derives stable fake augmentation material for unknown usernames,
// so that probing usernames yields no signal before authentication fails.
type Decoy struct {
	Key    []byte
	Params Params
}

func (d Decoy) salt(username []byte) ([]byte, error) {
	return crypto.HKDFSHA256(d.Key, nil, append(bytes.Clone(decoySaltInfo), username...), SaltSize)
}

func (d Decoy) exponent(username []byte) (*big.Int, error) {
	b, err := crypto.HKDFSHA256(d.Key, nil, append(bytes.Clone(decoyExpInfo), username...), spake2p.WsSizeBytes)
	if err != nil {
		return nil, err
	}
	q := crypto.ReduceScalar(b)
	if q.Sign() == 0 {
		q.SetInt64(1)
	}
	return q, nil
}

// verifier returns random w0 and L that no password matches.
func (d Decoy) verifier(rand io.Reader) (w0, L []byte, err error) {
	k0, err := crypto.RandomScalar(rand)
	if err != nil {
		return nil, nil, err
	}
	k1, err := crypto.RandomScalar(rand)
	if err != nil {
		return nil, nil, err
	}
	return crypto.ScalarBytes(k0), crypto.BaseMul(k1).Bytes(), nil
}

// augmentationPayload is the CBOR body of wire.AugmentationInfo.
type augmentationPayload struct {
	Params    string `cbor:"1,keyasint"`
	Salt      []byte `cbor:"2,keyasint,omitempty"`
	Evaluated []byte `cbor:"3,keyasint,omitempty"`
}

func encodePayload(p augmentationPayload) (*wire.AugmentationInfo, error) {
	b, err := cbor.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &wire.AugmentationInfo{Payload: b}, nil
}

func decodePayload(info *wire.AugmentationInfo) (augmentationPayload, Params, error) {
	var p augmentationPayload
	if info == nil {
		return p, Params{}, ErrInvalidAugmentation
	}
	if err := cbor.Unmarshal(info.Payload, &p); err != nil {
		return p, Params{}, fmt.Errorf("%w: %v", ErrInvalidAugmentation, err)
	}
	params, err := ParseParams(p.Params)
	if err != nil {
		return p, Params{}, fmt.Errorf("%w: %v", ErrInvalidAugmentation, err)
	}
	return p, params, nil
}

// deriveScalars runs the password hash and splits the result into w0, w1.
func deriveScalars(params Params, username, password, salt []byte) (w0, w1 []byte, err error) {
	ws, err := params.Derive(passwordInput(username, password), salt, 2*spake2p.WsSizeBytes)
	if err != nil {
		return nil, nil, err
	}
	return spake2p.ComputeW0W1(ws)
}

func makeVerifier(w0, w1 []byte) ([]byte, error) {
	L, err := spake2p.ComputeL(w1)
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(w0), L...), nil
}

func splitVerifier(v []byte) (w0, L []byte, err error) {
	if len(v) != VerifierSize {
		return nil, nil, ErrInvalidVerifier
	}
	if _, err := crypto.DecodePoint(v[spake2p.GroupSizeBytes:]); err != nil {
		return nil, nil, ErrInvalidVerifier
	}
	return v[:spake2p.GroupSizeBytes], v[spake2p.GroupSizeBytes:], nil
}

// Register builds a plain registration: a fresh random salt and the
// verifier derived from it.
func Register(username, password []byte, params Params, rand io.Reader) (*wire.Registration, error) {
	if len(username) == 0 {
		return nil, fmt.Errorf("%w: empty username", ErrInvalidRegistration)
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, err
	}

	w0, w1, err := deriveScalars(params, username, password, salt)
	if err != nil {
		return nil, err
	}
	verifier, err := makeVerifier(w0, w1)
	if err != nil {
		return nil, err
	}

	return &wire.Registration{
		Username: bytes.Clone(username),
		Salt:     salt,
		Params:   params.String(),
		Verifier: verifier,
	}, nil
}

// RegisterStrong builds a strong registration. The salt is SHA-256(q*H)
// where H hashes the credentials to the curve and q is a fresh secret
// exponent that only the server keeps.
func RegisterStrong(username, password []byte, params Params, rand io.Reader) (*wire.StrongRegistration, error) {
	if len(username) == 0 {
		return nil, fmt.Errorf("%w: empty username", ErrInvalidRegistration)
	}
	q, err := crypto.RandomScalar(rand)
	if err != nil {
		return nil, err
	}

	h := crypto.HashToPoint(strongDomain, username, password)
	salt := crypto.SHA256Slice(h.Mul(q).Bytes())

	w0, w1, err := deriveScalars(params, username, password, salt)
	if err != nil {
		return nil, err
	}
	verifier, err := makeVerifier(w0, w1)
	if err != nil {
		return nil, err
	}

	return &wire.StrongRegistration{
		Username:       bytes.Clone(username),
		SecretExponent: crypto.ScalarBytes(q),
		Params:         params.String(),
		Verifier:       verifier,
	}, nil
}

// PlainAugmenter implements Augmenter with a stored salt.
type PlainAugmenter struct{}

// Family implements Augmenter.
func (PlainAugmenter) Family() wire.Family { return wire.FamilyPlain }

// Register implements Augmenter.
func (PlainAugmenter) Register(username, password []byte, params Params, rand io.Reader) (wire.Message, error) {
	return Register(username, password, params, rand)
}

// Enroll implements Augmenter.
func (PlainAugmenter) Enroll(msg wire.Message, store credential.Store) (bool, error) {
	reg, ok := msg.(*wire.Registration)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrWrongFamily, msg.Kind())
	}
	if _, err := ParseParams(reg.Params); err != nil {
		return false, err
	}
	if _, _, err := splitVerifier(reg.Verifier); err != nil {
		return false, err
	}
	if !credential.Fits(store, reg.Username) {
		return false, nil
	}
	return true, store.Store(reg.Username, reg.Salt, nil, reg.Verifier, reg.Params)
}

// Start implements Augmenter.
func (PlainAugmenter) Start(username, password []byte, _ io.Reader) (*PendingAugmentation, wire.Message, error) {
	p := &PendingAugmentation{username: bytes.Clone(username), password: bytes.Clone(password)}
	return p, &wire.Username{Username: bytes.Clone(username)}, nil
}

// Augment implements Augmenter.
func (PlainAugmenter) Augment(req wire.Message, store credential.Store, d Decoy, rand io.Reader) (*Augmentation, error) {
	u, ok := req.(*wire.Username)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWrongFamily, req.Kind())
	}

	aug := &Augmentation{Username: bytes.Clone(u.Username)}
	payload := augmentationPayload{}

	rec, found := store.Lookup(u.Username)
	if found {
		w0, L, err := splitVerifier(rec.Verifier)
		if err != nil {
			return nil, err
		}
		aug.W0, aug.L, aug.Known = w0, L, true
		payload.Salt, payload.Params = rec.Salt, rec.Params
	} else {
		salt, err := d.salt(u.Username)
		if err != nil {
			return nil, err
		}
		if aug.W0, aug.L, err = d.verifier(rand); err != nil {
			return nil, err
		}
		payload.Salt, payload.Params = salt, d.Params.String()
	}

	info, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	aug.Info = info
	return aug, nil
}

// Complete implements Augmenter.
func (PlainAugmenter) Complete(p *PendingAugmentation, info *wire.AugmentationInfo) ([]byte, []byte, error) {
	payload, params, err := decodePayload(info)
	if err != nil {
		return nil, nil, err
	}
	if len(payload.Salt) == 0 {
		return nil, nil, fmt.Errorf("%w: missing salt", ErrInvalidAugmentation)
	}
	return deriveScalars(params, p.username, p.password, payload.Salt)
}

// StrongAugmenter implements Augmenter with a secret exponent and blinded
// username exchange.
type StrongAugmenter struct{}

// Family implements Augmenter.
func (StrongAugmenter) Family() wire.Family { return wire.FamilyStrong }

// Register implements Augmenter.
func (StrongAugmenter) Register(username, password []byte, params Params, rand io.Reader) (wire.Message, error) {
	return RegisterStrong(username, password, params, rand)
}

// Enroll implements Augmenter.
func (StrongAugmenter) Enroll(msg wire.Message, store credential.Store) (bool, error) {
	reg, ok := msg.(*wire.StrongRegistration)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrWrongFamily, msg.Kind())
	}
	if _, err := ParseParams(reg.Params); err != nil {
		return false, err
	}
	if _, err := crypto.ParseScalar(reg.SecretExponent); err != nil {
		return false, fmt.Errorf("%w: secret exponent: %v", ErrInvalidRegistration, err)
	}
	if _, _, err := splitVerifier(reg.Verifier); err != nil {
		return false, err
	}
	if !credential.Fits(store, reg.Username) {
		return false, nil
	}
	return true, store.Store(reg.Username, reg.SecretExponent, nil, reg.Verifier, reg.Params)
}

// Start implements Augmenter. The client blinds H(username, password) with
// a fresh scalar r.
func (StrongAugmenter) Start(username, password []byte, rand io.Reader) (*PendingAugmentation, wire.Message, error) {
	r, err := crypto.RandomScalar(rand)
	if err != nil {
		return nil, nil, err
	}
	h := crypto.HashToPoint(strongDomain, username, password)

	p := &PendingAugmentation{
		username: bytes.Clone(username),
		password: bytes.Clone(password),
		blind:    r,
	}
	return p, &wire.StrongUsername{Username: bytes.Clone(username), Blinded: h.Mul(r).Bytes()}, nil
}

// Augment implements Augmenter. The server raises the blinded point to its
// secret exponent.
func (StrongAugmenter) Augment(req wire.Message, store credential.Store, d Decoy, rand io.Reader) (*Augmentation, error) {
	u, ok := req.(*wire.StrongUsername)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWrongFamily, req.Kind())
	}
	blinded, err := crypto.DecodePoint(u.Blinded)
	if err != nil {
		return nil, fmt.Errorf("%w: blinded point: %v", ErrInvalidAugmentation, err)
	}

	aug := &Augmentation{Username: bytes.Clone(u.Username)}
	var q *big.Int
	var params string

	rec, found := store.Lookup(u.Username)
	if found {
		if q, err = crypto.ParseScalar(rec.Salt); err != nil {
			return nil, ErrInvalidVerifier
		}
		w0, L, err := splitVerifier(rec.Verifier)
		if err != nil {
			return nil, err
		}
		aug.W0, aug.L, aug.Known = w0, L, true
		params = rec.Params
	} else {
		if q, err = d.exponent(u.Username); err != nil {
			return nil, err
		}
		if aug.W0, aug.L, err = d.verifier(rand); err != nil {
			return nil, err
		}
		params = d.Params.String()
	}

	info, err := encodePayload(augmentationPayload{
		Params:    params,
		Evaluated: blinded.Mul(q).Bytes(),
	})
	if err != nil {
		return nil, err
	}
	aug.Info = info
	return aug, nil
}

// Complete implements Augmenter. Unblinding q*r*H with r^-1 yields q*H.
func (StrongAugmenter) Complete(p *PendingAugmentation, info *wire.AugmentationInfo) ([]byte, []byte, error) {
	if p.blind == nil {
		return nil, nil, fmt.Errorf("%w: no blinding state", ErrWrongFamily)
	}
	payload, params, err := decodePayload(info)
	if err != nil {
		return nil, nil, err
	}
	evaluated, err := crypto.DecodePoint(payload.Evaluated)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: evaluated point: %v", ErrInvalidAugmentation, err)
	}

	salt := crypto.SHA256Slice(evaluated.Mul(crypto.ScalarInverse(p.blind)).Bytes())
	return deriveScalars(params, p.username, p.password, salt)
}
