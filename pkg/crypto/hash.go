// Package crypto provides the primitives used by the serialpake handshake:
// SHA-256 hashing, HMAC, key and password derivation, and P-256 group
// arithmetic.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// SHA256LenBytes is the SHA-256 output length in bytes.
const SHA256LenBytes = 32

// SHA256 computes the SHA-256 hash of a message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA256Slice computes the SHA-256 hash and returns it as a slice.
func SHA256Slice(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// SHA256Concat hashes the concatenation of parts without copying them.
func SHA256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACSHA256 computes HMAC-SHA256 over the concatenation of parts.
func HMACSHA256(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACEqual compares two MACs in constant time.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}

// AppendLenPrefixed appends data to dst with an 8-byte little-endian length
// prefix. Transcripts and KDF inputs are built from these so that field
// boundaries are unambiguous.
func AppendLenPrefixed(dst, data []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(data)))
	return append(dst, data...)
}
