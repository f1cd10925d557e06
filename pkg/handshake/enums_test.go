package handshake

import "testing"

func TestServerStateString(t *testing.T) {
	tests := []struct {
		state     ServerState
		want      string
		inSession bool
	}{
		{StateAwaitRegistration, "AwaitRegistration", false},
		{StateSessionReady, "SessionReady", false},
		{StateAwaitNonce, "AwaitNonce", true},
		{StateAwaitUsername, "AwaitUsername", true},
		{StateAwaitPublicKey, "AwaitPublicKey", true},
		{StateAwaitAuthenticator, "AwaitAuthenticator", true},
		{ServerState(99), "Unknown", false},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ServerState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
		if got := tt.state.InSession(); got != tt.inSession {
			t.Errorf("%s.InSession() = %v, want %v", tt.state, got, tt.inSession)
		}
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventRegistered, "Registered"},
		{EventRegistrationRejected, "RegistrationRejected"},
		{EventSessionStarted, "SessionStarted"},
		{EventSessionRestarted, "SessionRestarted"},
		{EventAuthenticationFailed, "AuthenticationFailed"},
		{EventSessionEstablished, "SessionEstablished"},
		{EventFramingError, "FramingError"},
		{EventDecodeError, "DecodeError"},
		{EventType(-1), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
