package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for log entries
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeJoined
	EventTypeExited
	EventTypeRewardClaimed
	EventTypeRoundSwept
)

// Envelope wraps every applied command in the event log
type Envelope struct {
	// Global monotonic sequence assigned by the extension
	Sequence int64

	// Stable command ID from the caller, used for deduplication
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Account context (nil for round-level events like the burn sweep)
	Account *uuid.UUID

	// Round context (nil for account-only events)
	Round *int64

	// Versioned input timestamp from the command (NOT wall-clock)
	Timestamp time.Time

	// Caller-supplied ordering hint
	SourceSequence int64

	// JSON-encoded applied-event record; replay re-applies this verbatim
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all inbound commands implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator of the event this command produces
	EventType() EventType

	// Account returns the acting account (nil for round-level commands)
	Account() *uuid.UUID

	// SourceSequence returns the caller-supplied ordering hint
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeJoined:
		return "Joined"
	case EventTypeExited:
		return "Exited"
	case EventTypeRewardClaimed:
		return "RewardClaimed"
	case EventTypeRoundSwept:
		return "RoundSwept"
	default:
		return "Unknown"
	}
}

// ParseEventType maps a stored event_type string back to its discriminator.
func ParseEventType(s string) EventType {
	switch s {
	case "Joined":
		return EventTypeJoined
	case "Exited":
		return EventTypeExited
	case "RewardClaimed":
		return EventTypeRewardClaimed
	case "RoundSwept":
		return EventTypeRoundSwept
	default:
		return EventTypeUnknown
	}
}
