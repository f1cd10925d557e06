package handshake

// ServerState represents the server orchestrator state machine.
type ServerState int

const (
	// StateAwaitRegistration is the initial state: the server waits for the
	// one registration it accepts per process lifetime.
	StateAwaitRegistration ServerState = iota

	// StateSessionReady means no session is in flight. The server begins a
	// new one immediately.
	StateSessionReady

	// StateAwaitNonce means the server sent its Nonce and waits for the
	// client's.
	StateAwaitNonce

	// StateAwaitUsername waits for a Username or StrongUsername.
	StateAwaitUsername

	// StateAwaitPublicKey waits for the client's PublicKey.
	StateAwaitPublicKey

	// StateAwaitAuthenticator waits for the client's Authenticator.
	StateAwaitAuthenticator
)

// String returns a human-readable representation of the server state.
func (s ServerState) String() string {
	switch s {
	case StateAwaitRegistration:
		return "AwaitRegistration"
	case StateSessionReady:
		return "SessionReady"
	case StateAwaitNonce:
		return "AwaitNonce"
	case StateAwaitUsername:
		return "AwaitUsername"
	case StateAwaitPublicKey:
		return "AwaitPublicKey"
	case StateAwaitAuthenticator:
		return "AwaitAuthenticator"
	default:
		return "Unknown"
	}
}

// InSession returns true if a session is in flight.
func (s ServerState) InSession() bool {
	return s >= StateAwaitNonce && s <= StateAwaitAuthenticator
}

// EventType identifies an orchestrator event.
type EventType int

const (
	// EventRegistered is emitted when a registration is stored.
	EventRegistered EventType = iota

	// EventRegistrationRejected is emitted when a registration is refused.
	// The peer is not told.
	EventRegistrationRejected

	// EventSessionStarted is emitted when a session begins and its Nonce is sent.
	EventSessionStarted

	// EventSessionRestarted is emitted when a protocol violation abandons
	// the session in flight.
	EventSessionRestarted

	// EventAuthenticationFailed is emitted when the peer's authenticator
	// does not verify.
	EventAuthenticationFailed

	// EventSessionEstablished is emitted when a session key is derived.
	EventSessionEstablished

	// EventFramingError is emitted when the receive buffer overflows.
	EventFramingError

	// EventDecodeError is emitted when a frame does not decode.
	EventDecodeError
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "Registered"
	case EventRegistrationRejected:
		return "RegistrationRejected"
	case EventSessionStarted:
		return "SessionStarted"
	case EventSessionRestarted:
		return "SessionRestarted"
	case EventAuthenticationFailed:
		return "AuthenticationFailed"
	case EventSessionEstablished:
		return "SessionEstablished"
	case EventFramingError:
		return "FramingError"
	case EventDecodeError:
		return "DecodeError"
	default:
		return "Unknown"
	}
}
