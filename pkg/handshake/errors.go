package handshake

import "errors"

// Handshake errors.
var (
	// ErrUnexpectedMessage is returned when a message arrives out of turn.
	ErrUnexpectedMessage = errors.New("handshake: unexpected message")

	// ErrUsernameTooLong is reported when a registration exceeds the store capacity.
	ErrUsernameTooLong = errors.New("handshake: username exceeds store capacity")

	// ErrNoTransport is returned when a config has no transport.
	ErrNoTransport = errors.New("handshake: no transport configured")

	// ErrNoStore is returned when a server config has no credential store.
	ErrNoStore = errors.New("handshake: no credential store configured")

	// ErrEmptyUsername is returned for an empty username.
	ErrEmptyUsername = errors.New("handshake: empty username")
)
