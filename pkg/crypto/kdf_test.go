package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// RFC 5869 Appendix A, SHA-256 cases 1 and 3.
func TestHKDFSHA256(t *testing.T) {
	tests := []struct {
		name   string
		ikm    string
		salt   string
		info   string
		length int
		okm    string
	}{
		{
			name:   "RFC5869_TC1",
			ikm:    "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			salt:   "000102030405060708090a0b0c",
			info:   "f0f1f2f3f4f5f6f7f8f9",
			length: 42,
			okm:    "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865",
		},
		{
			name:   "RFC5869_TC3_no_salt_no_info",
			ikm:    "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			length: 42,
			okm:    "8da4e775a563c18f715f802a063c5a31b8a11f5c5ee1879ec3454e5f3c738d2d9d201395faa4b61a96c8",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := HKDFSHA256(mustHex(t, tc.ikm), mustHex(t, tc.salt), mustHex(t, tc.info), tc.length)
			if err != nil {
				t.Fatalf("HKDFSHA256 failed: %v", err)
			}
			if want := mustHex(t, tc.okm); !bytes.Equal(got, want) {
				t.Errorf("OKM mismatch\ngot:  %x\nwant: %x", got, want)
			}
		})
	}
}

// RFC 7914 Section 11 and the widely published PBKDF2-HMAC-SHA256 vectors.
func TestPasswordKDFVectors(t *testing.T) {
	t.Run("PBKDF2_c1", func(t *testing.T) {
		got := PBKDF2SHA256([]byte("password"), []byte("salt"), 1, 32)
		want := mustHex(t, "120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b")
		if !bytes.Equal(got, want) {
			t.Errorf("got %x, want %x", got, want)
		}
	})

	t.Run("PBKDF2_c2", func(t *testing.T) {
		got := PBKDF2SHA256([]byte("password"), []byte("salt"), 2, 32)
		want := mustHex(t, "ae4d0c95af6b46d32d0adff928f06dd02a303f8ef3c251dfd6e2d85a95474c43")
		if !bytes.Equal(got, want) {
			t.Errorf("got %x, want %x", got, want)
		}
	})

	t.Run("scrypt_RFC7914", func(t *testing.T) {
		got, err := Scrypt([]byte("password"), []byte("NaCl"), 10, 8, 16, 64)
		if err != nil {
			t.Fatalf("Scrypt failed: %v", err)
		}
		want := mustHex(t, "fdbabe1c9d3472007856e7190d01e9fe7c6ad7cbc8237830e77376634b373162"+
			"2eaf30d92e22a3886ff109279d9830dac727afb94a83ee6d8360cbdfa2cc0640")
		if !bytes.Equal(got, want) {
			t.Errorf("got %x, want %x", got, want)
		}
	})
}

func TestArgon2idDeterministic(t *testing.T) {
	a := Argon2id([]byte("password"), []byte("somesaltsomesalt"), 1, 64, 1, 80)
	b := Argon2id([]byte("password"), []byte("somesaltsomesalt"), 1, 64, 1, 80)
	c := Argon2id([]byte("passwore"), []byte("somesaltsomesalt"), 1, 64, 1, 80)

	if len(a) != 80 {
		t.Fatalf("expected 80 bytes, got %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("same inputs must derive the same key")
	}
	if bytes.Equal(a, c) {
		t.Error("different passwords must derive different keys")
	}
}

func TestHashHelpers(t *testing.T) {
	// FIPS 180-4 B.1
	abc := SHA256([]byte("abc"))
	if hex.EncodeToString(abc[:]) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("SHA256(abc) = %x", abc)
	}
	if !bytes.Equal(SHA256Concat([]byte("a"), []byte("bc")), abc[:]) {
		t.Error("SHA256Concat must equal hashing the concatenation")
	}

	// RFC 4231 test case 2
	mac := HMACSHA256([]byte("Jefe"), []byte("what do ya want "), []byte("for nothing?"))
	want := mustHex(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843")
	if !HMACEqual(mac, want) {
		t.Errorf("HMAC mismatch: %x", mac)
	}

	got := AppendLenPrefixed([]byte{0xFF}, []byte("ab"))
	if !bytes.Equal(got, []byte{0xFF, 2, 0, 0, 0, 0, 0, 0, 0, 'a', 'b'}) {
		t.Errorf("AppendLenPrefixed = %x", got)
	}
}
