package crypto

import (
	"crypto/elliptic"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
)

// P-256 sizes.
const (
	// P256ScalarSizeBytes is the size of an encoded scalar.
	P256ScalarSizeBytes = 32

	// P256PointSizeBytes is the uncompressed point size.
	// Format: 0x04 || X (32 bytes) || Y (32 bytes) = 65 bytes
	P256PointSizeBytes = 65
)

// Errors for group operations.
var (
	ErrInvalidPoint  = errors.New("crypto: point is not a valid P-256 element")
	ErrInvalidScalar = errors.New("crypto: scalar out of range")
)

var p256 = elliptic.P256()

// Point is a P-256 group element. The zero Point (nil coordinates) and
// (0, 0) both represent the identity.
type Point struct {
	x, y *big.Int
}

// DecodePoint parses an uncompressed point and checks it is on the curve.
// The identity has no valid encoding and is rejected.
func DecodePoint(data []byte) (*Point, error) {
	if len(data) != P256PointSizeBytes || data[0] != 0x04 {
		return nil, ErrInvalidPoint
	}

	x := new(big.Int).SetBytes(data[1:33])
	y := new(big.Int).SetBytes(data[33:65])
	if !p256.IsOnCurve(x, y) {
		return nil, ErrInvalidPoint
	}
	return &Point{x: x, y: y}, nil
}

// MustDecodePoint is DecodePoint for package-level constants.
func MustDecodePoint(data []byte) *Point {
	p, err := DecodePoint(data)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns the uncompressed encoding.
func (p *Point) Bytes() []byte {
	out := make([]byte, P256PointSizeBytes)
	out[0] = 0x04
	if !p.IsIdentity() {
		p.x.FillBytes(out[1:33])
		p.y.FillBytes(out[33:65])
	}
	return out
}

// IsIdentity reports whether p is the point at infinity.
func (p *Point) IsIdentity() bool {
	return p.x == nil || (p.x.Sign() == 0 && p.y.Sign() == 0)
}

// Equal reports whether p and q are the same element.
func (p *Point) Equal(q *Point) bool {
	if p.IsIdentity() || q.IsIdentity() {
		return p.IsIdentity() == q.IsIdentity()
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// Add returns p + q.
func (p *Point) Add(q *Point) *Point {
	switch {
	case p.IsIdentity():
		return q
	case q.IsIdentity():
		return p
	}
	x, y := p256.Add(p.x, p.y, q.x, q.y)
	return &Point{x: x, y: y}
}

// Neg returns -p.
func (p *Point) Neg() *Point {
	if p.IsIdentity() {
		return p
	}
	negY := new(big.Int).Neg(p.y)
	negY.Mod(negY, p256.Params().P)
	return &Point{x: new(big.Int).Set(p.x), y: negY}
}

// Sub returns p - q.
func (p *Point) Sub(q *Point) *Point {
	return p.Add(q.Neg())
}

// Mul returns k*p.
func (p *Point) Mul(k *big.Int) *Point {
	if p.IsIdentity() {
		return p
	}
	x, y := p256.ScalarMult(p.x, p.y, k.Bytes())
	return &Point{x: x, y: y}
}

// BaseMul returns k*G for the standard generator G.
func BaseMul(k *big.Int) *Point {
	x, y := p256.ScalarBaseMult(k.Bytes())
	return &Point{x: x, y: y}
}

// HashToPoint maps domain and parts to a curve point with unknown discrete
// logarithm, using try-and-increment on SHA-256. The result always has an
// even Y coordinate. Not constant time.
func HashToPoint(domain []byte, parts ...[]byte) *Point {
	params := p256.Params()

	seed := AppendLenPrefixed(nil, domain)
	for _, part := range parts {
		seed = AppendLenPrefixed(seed, part)
	}

	three := big.NewInt(3)
	for ctr := uint32(0); ; ctr++ {
		digest := SHA256Concat(seed, binary.BigEndian.AppendUint32(nil, ctr))
		x := new(big.Int).SetBytes(digest)
		x.Mod(x, params.P)

		// y^2 = x^3 - 3x + b
		y2 := new(big.Int).Exp(x, three, params.P)
		y2.Sub(y2, new(big.Int).Mul(three, x))
		y2.Add(y2, params.B)
		y2.Mod(y2, params.P)

		y := new(big.Int).ModSqrt(y2, params.P)
		if y == nil || y.Sign() == 0 {
			continue
		}
		if y.Bit(0) == 1 {
			y.Sub(params.P, y)
		}
		return &Point{x: x, y: y}
	}
}

// P256Order returns the group order n.
func P256Order() *big.Int {
	return new(big.Int).Set(p256.Params().N)
}

// RandomScalar returns a uniformly random scalar in [1, n).
func RandomScalar(r io.Reader) (*big.Int, error) {
	n := p256.Params().N
	b := make([]byte, P256ScalarSizeBytes)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(b)
		if k.Sign() > 0 && k.Cmp(n) < 0 {
			return k, nil
		}
	}
}

// ReduceScalar interprets b as a big-endian integer and reduces it mod n.
// Inputs at least 8 bytes longer than a scalar keep the bias negligible.
func ReduceScalar(b []byte) *big.Int {
	k := new(big.Int).SetBytes(b)
	return k.Mod(k, p256.Params().N)
}

// ParseScalar decodes a 32-byte scalar and checks 0 < k < n.
func ParseScalar(b []byte) (*big.Int, error) {
	if len(b) != P256ScalarSizeBytes {
		return nil, ErrInvalidScalar
	}
	k := new(big.Int).SetBytes(b)
	if k.Sign() == 0 || k.Cmp(p256.Params().N) >= 0 {
		return nil, ErrInvalidScalar
	}
	return k, nil
}

// ScalarBytes encodes k as a 32-byte big-endian scalar.
func ScalarBytes(k *big.Int) []byte {
	out := make([]byte, P256ScalarSizeBytes)
	k.FillBytes(out)
	return out
}

// ScalarInverse returns k^-1 mod n.
func ScalarInverse(k *big.Int) *big.Int {
	return new(big.Int).ModInverse(k, p256.Params().N)
}
