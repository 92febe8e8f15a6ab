package buffer

import (
	"slices"

	"github.com/loykin/jitter/internal/gesture"
)

// Ledger records ids that were handed to a consumer while their gesture is
// still open. An entry is marked stopped when the gesture's Stop arrives and is
// removed by the next drain (Sweep).
//
// Ledger is not safe for concurrent use; Buffer guards it with its own mutex.
type Ledger struct {
	// id -> stopped
	entries map[gesture.ID]bool
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[gesture.ID]bool)}
}

// Add marks id as consumed. A previous stopped mark is cleared.
func (l *Ledger) Add(id gesture.ID) { l.entries[id] = false }

func (l *Ledger) Contains(id gesture.ID) bool {
	_, ok := l.entries[id]
	return ok
}

// MarkStopped flags a consumed id for removal at the next sweep.
// It returns false when id is not in the ledger.
func (l *Ledger) MarkStopped(id gesture.ID) bool {
	if _, ok := l.entries[id]; !ok {
		return false
	}
	l.entries[id] = true
	return true
}

func (l *Ledger) Remove(id gesture.ID) { delete(l.entries, id) }

// Sweep removes every stopped entry and returns the removed ids in ascending order.
func (l *Ledger) Sweep() []gesture.ID {
	var out []gesture.ID
	for id, stopped := range l.entries {
		if stopped {
			out = append(out, id)
			delete(l.entries, id)
		}
	}
	slices.Sort(out)
	return out
}

func (l *Ledger) Len() int { return len(l.entries) }

// IDs returns the consumed ids in ascending order.
func (l *Ledger) IDs() []gesture.ID {
	out := make([]gesture.ID, 0, len(l.entries))
	for id := range l.entries {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (l *Ledger) reset() { clear(l.entries) }
