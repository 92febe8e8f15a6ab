// Package history exports gesture delivery events to external analytics
// systems. Exported events form an append-only audit trail; the engine never
// reads them back.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/jitter/internal/gesture"
)

// EventType defines what happened to a gesture.
type EventType string

const (
	EventDelivered  EventType = "delivered"
	EventPruned     EventType = "pruned"
	EventSuppressed EventType = "suppressed"
)

// Event is one exported history row. Session identifies the engine instance
// that produced it, since gesture ids are reused across runs.
type Event struct {
	Session    uuid.UUID        `json:"session"`
	Type       EventType        `json:"event"`
	Category   gesture.Category `json:"category"`
	GestureID  gesture.ID       `json:"gesture_id"`
	Phase      gesture.Phase    `json:"phase"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Named is implemented by sinks that report a short name for logs and metrics.
type Named interface {
	Name() string
}
