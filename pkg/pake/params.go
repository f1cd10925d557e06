package pake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/serialpake/pkg/crypto"
)

// Algorithm names a password hashing function.
type Algorithm string

// Supported password hashing algorithms.
const (
	AlgPBKDF2SHA256 Algorithm = "pbkdf2-sha256"
	AlgScrypt       Algorithm = "scrypt"
	AlgArgon2id     Algorithm = "argon2id"
)

// Parameter bounds. Parameters arrive over the wire, so they are capped to
// keep a hostile peer from requesting unbounded work.
const (
	maxPBKDF2Iterations = 10_000_000
	maxScryptLogN       = 20
	maxScryptR          = 16
	maxScryptP          = 16
	maxArgon2MemoryKiB  = 1 << 21
	maxArgon2Time       = 16
	maxArgon2Threads    = 255
)

// Params are password hashing parameters, written as
//
//	pbkdf2-sha256,i=N
//	scrypt,ln=N,r=N,p=N
//	argon2id,m=N,t=N,p=N
type Params struct {
	Algorithm Algorithm

	// Iterations is the PBKDF2 iteration count or the Argon2 time cost.
	Iterations int
	// LogN is the scrypt cost exponent.
	LogN int
	// R is the scrypt block size.
	R int
	// P is the scrypt or Argon2 parallelism.
	P int
	// MemoryKiB is the Argon2 memory cost.
	MemoryKiB int
}

// DefaultParams is used for new registrations when none are given.
var DefaultParams = Params{Algorithm: AlgArgon2id, MemoryKiB: 19456, Iterations: 2, P: 1}

// ParseParams parses a parameter string.
func ParseParams(s string) (Params, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	p := Params{Algorithm: Algorithm(fields[0])}

	var keys []string
	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		keys = []string{"i"}
	case AlgScrypt:
		keys = []string{"ln", "r", "p"}
	case AlgArgon2id:
		keys = []string{"m", "t", "p"}
	default:
		return Params{}, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidParams, fields[0])
	}

	values := make(map[string]int, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return Params{}, fmt.Errorf("%w: malformed field %q", ErrInvalidParams, f)
		}
		if _, dup := values[k]; dup {
			return Params{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidParams, k)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Params{}, fmt.Errorf("%w: field %q: %v", ErrInvalidParams, k, err)
		}
		values[k] = n
	}
	if len(values) != len(keys) {
		return Params{}, fmt.Errorf("%w: %s needs fields %v", ErrInvalidParams, p.Algorithm, keys)
	}
	for _, k := range keys {
		if _, ok := values[k]; !ok {
			return Params{}, fmt.Errorf("%w: %s missing field %q", ErrInvalidParams, p.Algorithm, k)
		}
	}

	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		p.Iterations = values["i"]
	case AlgScrypt:
		p.LogN, p.R, p.P = values["ln"], values["r"], values["p"]
	case AlgArgon2id:
		p.MemoryKiB, p.Iterations, p.P = values["m"], values["t"], values["p"]
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// MustParseParams is ParseParams for constants and tests.
func MustParseParams(s string) Params {
	p, err := ParseParams(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the canonical parameter string.
func (p Params) String() string {
	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		return fmt.Sprintf("%s,i=%d", p.Algorithm, p.Iterations)
	case AlgScrypt:
		return fmt.Sprintf("%s,ln=%d,r=%d,p=%d", p.Algorithm, p.LogN, p.R, p.P)
	case AlgArgon2id:
		return fmt.Sprintf("%s,m=%d,t=%d,p=%d", p.Algorithm, p.MemoryKiB, p.Iterations, p.P)
	default:
		return string(p.Algorithm)
	}
}

// Validate checks that the parameters are within supported bounds.
func (p Params) Validate() error {
	inRange := func(name string, v, lo, hi int) error {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s=%d out of range [%d, %d]", ErrInvalidParams, name, v, lo, hi)
		}
		return nil
	}

	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		return inRange("i", p.Iterations, 1, maxPBKDF2Iterations)
	case AlgScrypt:
		if err := inRange("ln", p.LogN, 1, maxScryptLogN); err != nil {
			return err
		}
		if err := inRange("r", p.R, 1, maxScryptR); err != nil {
			return err
		}
		return inRange("p", p.P, 1, maxScryptP)
	case AlgArgon2id:
		if err := inRange("m", p.MemoryKiB, 8*p.P, maxArgon2MemoryKiB); err != nil {
			return err
		}
		if err := inRange("t", p.Iterations, 1, maxArgon2Time); err != nil {
			return err
		}
		return inRange("p", p.P, 1, maxArgon2Threads)
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidParams, p.Algorithm)
	}
}

// Derive runs the password hash over input and salt.
func (p Params) Derive(input, salt []byte, keyLen int) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Algorithm {
	case AlgPBKDF2SHA256:
		return crypto.PBKDF2SHA256(input, salt, p.Iterations, keyLen), nil
	case AlgScrypt:
		return crypto.Scrypt(input, salt, p.LogN, p.R, p.P, keyLen)
	default:
		return crypto.Argon2id(input, salt, uint32(p.Iterations), uint32(p.MemoryKiB), uint8(p.P), keyLen), nil
	}
}
