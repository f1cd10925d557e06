package credential

import (
	"bytes"
	"path/filepath"
	"testing"
)

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()

	capacity := s.Capacity()
	atBound := bytes.Repeat([]byte{'a'}, capacity)
	overBound := bytes.Repeat([]byte{'b'}, capacity+1)

	if _, ok := s.Lookup(atBound); ok {
		t.Fatal("empty store returned a record")
	}

	if err := s.Store(atBound, []byte("salt"), nil, []byte("verifier"), "pbkdf2-sha256,i=1000"); err != nil {
		t.Fatalf("Store at capacity failed: %v", err)
	}
	rec, ok := s.Lookup(atBound)
	if !ok {
		t.Fatal("record at capacity not retrievable")
	}
	if !bytes.Equal(rec.Username, atBound) || string(rec.Salt) != "salt" ||
		string(rec.Verifier) != "verifier" || rec.Params != "pbkdf2-sha256,i=1000" {
		t.Errorf("unexpected record %+v", rec)
	}

	if err := s.Store(overBound, []byte("other"), nil, []byte("other"), "x"); err != nil {
		t.Fatalf("Store over capacity must not error, got %v", err)
	}
	if _, ok := s.Lookup(overBound); ok {
		t.Error("username over capacity was stored")
	}
	rec, ok = s.Lookup(atBound)
	if !ok || string(rec.Verifier) != "verifier" {
		t.Error("store changed by an over-capacity registration")
	}

	// Returned records must not alias store memory.
	rec.Verifier[0] = 'X'
	again, _ := s.Lookup(atBound)
	if again.Verifier[0] != 'v' {
		t.Error("Lookup result aliases stored data")
	}

	if err := s.Store(atBound, []byte("salt2"), []byte("uad"), []byte("verifier2"), "scrypt,ln=10,r=8,p=1"); err != nil {
		t.Fatalf("re-registration failed: %v", err)
	}
	rec, _ = s.Lookup(atBound)
	if string(rec.Verifier) != "verifier2" || string(rec.UAD) != "uad" {
		t.Errorf("re-registration not applied: %+v", rec)
	}
}

func TestSingleUser(t *testing.T) {
	s, err := NewSingleUser(8)
	if err != nil {
		t.Fatalf("NewSingleUser failed: %v", err)
	}
	storeContract(t, s)

	if err := s.Store([]byte("bob"), []byte("s"), nil, []byte("v"), "p"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, ok := s.Lookup([]byte("aaaaaaaa")); ok {
		t.Error("single-user store must forget the previous user")
	}
	if _, ok := s.Lookup([]byte("bob")); !ok {
		t.Error("bob not found")
	}
}

func TestSingleUserInvalidCapacity(t *testing.T) {
	if _, err := NewSingleUser(0); err != ErrInvalidCapacity {
		t.Errorf("got %v, want ErrInvalidCapacity", err)
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(SQLiteConfig{Path: ":memory:", Capacity: 16})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	storeContract(t, s)

	if err := s.Store([]byte("bob"), []byte("s"), nil, []byte("v"), "p"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verifiers.db")

	s, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if s.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", s.Capacity(), DefaultCapacity)
	}
	if err := s.Store([]byte("alice"), []byte("salt"), nil, []byte("verifier"), "argon2id,m=64,t=1,p=1"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	rec, ok := s.Lookup([]byte("alice"))
	if !ok {
		t.Fatal("record lost across reopen")
	}
	if rec.Params != "argon2id,m=64,t=1,p=1" || string(rec.Verifier) != "verifier" {
		t.Errorf("unexpected record %+v", rec)
	}
}
