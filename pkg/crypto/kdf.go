package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// HKDFSHA256 derives key material using HKDF-SHA256 (RFC 5869).
//
// Parameters:
//   - inputKey: Input keying material (IKM)
//   - salt: Optional salt value (can be nil or empty)
//   - info: Optional context/application-specific info (can be nil or empty)
//   - length: Number of bytes to derive
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// PBKDF2SHA256 derives a key from a password using PBKDF2-HMAC-SHA256.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

// Scrypt derives a key using scrypt (RFC 7914) with N = 2^logN.
func Scrypt(password, salt []byte, logN, r, p, keyLen int) ([]byte, error) {
	return scrypt.Key(password, salt, 1<<logN, r, p, keyLen)
}

// Argon2id derives a key using Argon2id (RFC 9106).
// memoryKiB is the memory cost in KiB, time the number of passes.
func Argon2id(password, salt []byte, time, memoryKiB uint32, threads uint8, keyLen int) []byte {
	return argon2.IDKey(password, salt, time, memoryKiB, threads, uint32(keyLen))
}
