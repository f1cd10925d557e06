package credential

import (
	"bytes"
	"sync"
)

// SingleUser is an in-memory Store holding at most one record. Storing a
// second username overwrites the first.
//
// All methods are safe for concurrent use.
type SingleUser struct {
	mu       sync.RWMutex
	capacity int
	record   *Record
}

// NewSingleUser creates an empty single-slot store with the given username
// capacity.
func NewSingleUser(capacity int) (*SingleUser, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &SingleUser{capacity: capacity}, nil
}

// Lookup implements Store.
func (s *SingleUser) Lookup(username []byte) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil || !bytes.Equal(s.record.Username, username) {
		return Record{}, false
	}
	return s.record.Clone(), true
}

// Store implements Store.
func (s *SingleUser) Store(username, salt, uad, verifier []byte, params string) error {
	if len(username) > s.capacity {
		return nil
	}

	rec := Record{
		Username: username,
		Salt:     salt,
		UAD:      uad,
		Verifier: verifier,
		Params:   params,
	}.Clone()

	s.mu.Lock()
	s.record = &rec
	s.mu.Unlock()
	return nil
}

// Capacity implements Store.
func (s *SingleUser) Capacity() int {
	return s.capacity
}
