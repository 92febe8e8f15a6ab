package buffer

import "github.com/loykin/jitter/internal/gesture"

// EventKind classifies what happened to a gesture inside a buffer.
type EventKind uint8

const (
	// EventNotified: a notification was written to the buffer.
	EventNotified EventKind = iota + 1
	// EventSuppressed: a notification was dropped because its id was already consumed.
	EventSuppressed
	// EventDelivered: a record was returned by a drain.
	EventDelivered
	// EventPruned: a stopped gesture left the buffer and ledger.
	EventPruned
)

func (k EventKind) String() string {
	switch k {
	case EventNotified:
		return "notified"
	case EventSuppressed:
		return "suppressed"
	case EventDelivered:
		return "delivered"
	case EventPruned:
		return "pruned"
	default:
		return "unknown"
	}
}

// Event is reported to an Observer after the buffer lock is released.
type Event struct {
	Kind     EventKind
	Category gesture.Category
	ID       gesture.ID
	Phase    gesture.Phase
}

// Observer is called synchronously on the notifying or draining goroutine.
// It must not block and must not call back into the same buffer.
type Observer func(Event)
