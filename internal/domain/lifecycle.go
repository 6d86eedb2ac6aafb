package domain

import "fmt"

// Decision is the outcome of the lifecycle state machine for one event.
// NoOp decisions come from duplicate deliveries and must be acknowledged
// as success without touching the record.
type Decision struct {
	Next         Status
	NoOp         bool
	SetStartedAt bool
	SetEndedAt   bool
}

// Transition decides the next lifecycle state for a stream receiving an
// ingest event. It is pure: callers apply the returned decision through the
// store under a transaction.
//
// The ingest platform delivers events at least once, so every edge is
// idempotent under re-delivery of the same event type: connected on a live
// stream and disconnected on an offline stream are no-ops, never errors.
// A soft-deleted stream rejects everything permanently.
func Transition(current Status, deleted bool, ev EventType) (Decision, error) {
	if deleted {
		return Decision{}, ErrStreamDeleted
	}

	switch ev {
	case EventConnected:
		if current == StatusLive {
			return Decision{Next: StatusLive, NoOp: true}, nil
		}
		return Decision{Next: StatusLive, SetStartedAt: true}, nil

	case EventDisconnected:
		if current == StatusOffline {
			return Decision{Next: StatusOffline, NoOp: true}, nil
		}
		return Decision{Next: StatusOffline, SetEndedAt: true}, nil

	default:
		return Decision{}, fmt.Errorf("%w: event %q from status %q", ErrInvalidTransition, ev, current)
	}
}
