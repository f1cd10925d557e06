// Package credential stores password verifier records for the handshake
// server.
//
// A Store holds, per username, the augmentation material the server needs:
// the verifier, a salt (plain augmentation) or secret exponent (strong
// augmentation), optional user associated data, and the password hashing
// parameter string. Stores are bounded by a username length capacity; records
// for longer usernames are silently not stored and callers that need to know
// must check the length themselves.
package credential

import (
	"bytes"
	"errors"
)

// DefaultCapacity is the default maximum username length in bytes.
const DefaultCapacity = 100

// ErrInvalidCapacity is returned for a non-positive capacity.
var ErrInvalidCapacity = errors.New("credential: capacity must be positive")

// Record is one stored credential.
type Record struct {
	Username []byte
	// Salt is the password hashing salt for plain augmentation, or the
	// secret exponent for strong augmentation.
	Salt     []byte
	UAD      []byte
	Verifier []byte
	Params   string
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{
		Username: bytes.Clone(r.Username),
		Salt:     bytes.Clone(r.Salt),
		UAD:      bytes.Clone(r.UAD),
		Verifier: bytes.Clone(r.Verifier),
		Params:   r.Params,
	}
}

// Store abstracts verifier storage.
//
// All methods must be safe for concurrent use.
type Store interface {
	// Lookup returns the record for username, if present.
	Lookup(username []byte) (Record, bool)

	// Store inserts or replaces the record for username. It is a no-op
	// returning nil when len(username) exceeds Capacity. Errors report
	// backend failures only.
	Store(username, salt, uad, verifier []byte, params string) error

	// Capacity returns the maximum username length in bytes.
	Capacity() int
}

// Fits reports whether username can be stored in s.
func Fits(s Store, username []byte) bool {
	return len(username) <= s.Capacity()
}
