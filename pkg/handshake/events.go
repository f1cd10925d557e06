package handshake

import (
	"time"

	"github.com/backkem/serialpake/pkg/pake"
	"github.com/google/uuid"
)

// Event is a diagnostic record emitted by the orchestrators. Events are not
// part of the protocol; they exist for logging, metrics and tests.
type Event struct {
	Type EventType

	// State is the server state when the event was emitted. Client events
	// leave it zero.
	State ServerState

	// SessionID identifies the session the event belongs to. It is
	// uuid.Nil for events outside a session.
	SessionID uuid.UUID

	// Username is set for registration events and once a session has seen
	// the peer's username.
	Username []byte

	// Key is the derived session key for EventSessionEstablished.
	Key pake.SessionKey

	// Err is the cause for rejection, restart and failure events.
	Err error

	// Stats are the counters accumulated during the session, or since the
	// Conn was created for events outside a session.
	Stats ConnStats

	// Elapsed is the time since the session began.
	Elapsed time.Duration
}

// EventHandler receives events. It runs on the orchestrator goroutine and
// must not block.
type EventHandler func(Event)
