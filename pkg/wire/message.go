// Package wire defines the handshake messages exchanged over the serial link
// and their encoding.
//
// Each message is a CBOR array [kind, body], where body is a map with integer
// keys, and the whole envelope is COBS-framed (see package framing). Exactly
// one augmentation family is in use per deployment: the plain family carries
// a salt in Registration/Username, the strong family carries a secret
// exponent and a blinded point in StrongRegistration/StrongUsername. A Codec
// is bound to one family and rejects the other.
package wire

import "fmt"

// Kind is the message discriminant on the wire.
type Kind uint8

// Message kinds.
const (
	KindRegistration Kind = iota + 1
	KindStrongRegistration
	KindNonce
	KindUsername
	KindStrongUsername
	KindAugmentationInfo
	KindPublicKey
	KindAuthenticator
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRegistration:
		return "Registration"
	case KindStrongRegistration:
		return "StrongRegistration"
	case KindNonce:
		return "Nonce"
	case KindUsername:
		return "Username"
	case KindStrongUsername:
		return "StrongUsername"
	case KindAugmentationInfo:
		return "AugmentationInfo"
	case KindPublicKey:
		return "PublicKey"
	case KindAuthenticator:
		return "Authenticator"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Family selects which augmentation variants are valid on a link.
type Family int

const (
	// FamilyPlain uses a salt stored next to the verifier.
	FamilyPlain Family = iota
	// FamilyStrong uses a secret exponent and blinded username exchange.
	FamilyStrong
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyPlain:
		return "plain"
	case FamilyStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// Allows reports whether messages of kind k may be used with family f.
func (f Family) Allows(k Kind) bool {
	switch k {
	case KindRegistration, KindUsername:
		return f == FamilyPlain
	case KindStrongRegistration, KindStrongUsername:
		return f == FamilyStrong
	default:
		return true
	}
}

// Message is one of the handshake message types in this package.
type Message interface {
	Kind() Kind
	validate() error
}

// Registration enrolls a username with a salted password verifier.
type Registration struct {
	Username []byte `cbor:"1,keyasint"`
	Salt     []byte `cbor:"2,keyasint"`
	Params   string `cbor:"3,keyasint"`
	Verifier []byte `cbor:"4,keyasint"`
}

// Kind implements Message.
func (*Registration) Kind() Kind { return KindRegistration }

func (m *Registration) validate() error {
	if len(m.Username) == 0 {
		return missing("username")
	}
	if len(m.Salt) == 0 {
		return missing("salt")
	}
	if m.Params == "" {
		return missing("params")
	}
	if len(m.Verifier) == 0 {
		return missing("verifier")
	}
	return nil
}

// StrongRegistration enrolls a username with a secret exponent instead of a salt.
type StrongRegistration struct {
	Username       []byte `cbor:"1,keyasint"`
	SecretExponent []byte `cbor:"2,keyasint"`
	Params         string `cbor:"3,keyasint"`
	Verifier       []byte `cbor:"4,keyasint"`
}

// Kind implements Message.
func (*StrongRegistration) Kind() Kind { return KindStrongRegistration }

func (m *StrongRegistration) validate() error {
	if len(m.Username) == 0 {
		return missing("username")
	}
	if len(m.SecretExponent) == 0 {
		return missing("secret exponent")
	}
	if m.Params == "" {
		return missing("params")
	}
	if len(m.Verifier) == 0 {
		return missing("verifier")
	}
	return nil
}

// Nonce carries a session nonce used to agree on the session identifier.
type Nonce struct {
	Nonce []byte `cbor:"1,keyasint"`
}

// Kind implements Message.
func (*Nonce) Kind() Kind { return KindNonce }

func (m *Nonce) validate() error {
	if len(m.Nonce) == 0 {
		return missing("nonce")
	}
	return nil
}

// Username starts augmentation for a plain-family user.
type Username struct {
	Username []byte `cbor:"1,keyasint"`
}

// Kind implements Message.
func (*Username) Kind() Kind { return KindUsername }

func (m *Username) validate() error {
	if len(m.Username) == 0 {
		return missing("username")
	}
	return nil
}

// StrongUsername starts augmentation for a strong-family user.
type StrongUsername struct {
	Username []byte `cbor:"1,keyasint"`
	Blinded  []byte `cbor:"2,keyasint"`
}

// Kind implements Message.
func (*StrongUsername) Kind() Kind { return KindStrongUsername }

func (m *StrongUsername) validate() error {
	if len(m.Username) == 0 {
		return missing("username")
	}
	if len(m.Blinded) == 0 {
		return missing("blinded point")
	}
	return nil
}

// AugmentationInfo carries the engine's augmentation payload to the client.
// The payload is opaque to this package.
type AugmentationInfo struct {
	Payload []byte `cbor:"1,keyasint"`
}

// Kind implements Message.
func (*AugmentationInfo) Kind() Kind { return KindAugmentationInfo }

func (m *AugmentationInfo) validate() error {
	if len(m.Payload) == 0 {
		return missing("payload")
	}
	return nil
}

// PublicKey carries an ephemeral key-exchange share.
type PublicKey struct {
	Key []byte `cbor:"1,keyasint"`
}

// Kind implements Message.
func (*PublicKey) Kind() Kind { return KindPublicKey }

func (m *PublicKey) validate() error {
	if len(m.Key) == 0 {
		return missing("key")
	}
	return nil
}

// Authenticator carries a key confirmation tag.
type Authenticator struct {
	Tag []byte `cbor:"1,keyasint"`
}

// Kind implements Message.
func (*Authenticator) Kind() Kind { return KindAuthenticator }

func (m *Authenticator) validate() error {
	if len(m.Tag) == 0 {
		return missing("tag")
	}
	return nil
}

// newMessage allocates an empty message for kind k.
func newMessage(k Kind) Message {
	switch k {
	case KindRegistration:
		return &Registration{}
	case KindStrongRegistration:
		return &StrongRegistration{}
	case KindNonce:
		return &Nonce{}
	case KindUsername:
		return &Username{}
	case KindStrongUsername:
		return &StrongUsername{}
	case KindAugmentationInfo:
		return &AugmentationInfo{}
	case KindPublicKey:
		return &PublicKey{}
	case KindAuthenticator:
		return &Authenticator{}
	default:
		return nil
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
