// Package buffer implements the per-category gesture buffer: the latest frame
// of every open gesture keyed by id, the consumption ledger beside it, the
// start/update/stop reconciliation applied on ingest and the filtered drain
// used by consumers.
//
// A Buffer is written by a high-rate producer and drained by consumers running
// at their own, lower rate. Both sides only ever hold the buffer mutex for a
// snapshot copy or a single entry mutation; predicates run outside the lock.
package buffer

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/loykin/jitter/internal/gesture"
)

// Predicate selects which buffered records a drain returns.
// It must be pure: no side effects and no calls into the buffer.
type Predicate[T gesture.Record] func(T) bool

// All matches every record.
func All[T gesture.Record](T) bool { return true }

// And matches when every predicate matches. Nil predicates are skipped.
func And[T gesture.Record](ps ...Predicate[T]) Predicate[T] {
	return func(r T) bool {
		for _, p := range ps {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// State is the lifecycle position of a single id inside a buffer.
type State uint8

const (
	StateAbsent State = iota
	StateOpen
	StateConsumed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateConsumed:
		return "consumed"
	default:
		return "absent"
	}
}

// Options configures a Buffer.
type Options struct {
	Category gesture.Category
	// Consumption marks delivered ids as consumed so they are not delivered again
	// until the gesture restarts. It can be changed later with SetConsumption.
	Consumption bool
	// FinalDelivery hands the Stop frame of an already consumed gesture to the
	// next drain once, instead of dropping it.
	FinalDelivery bool
	Logger        *slog.Logger
	Observer      Observer
}

type entry[T gesture.Record] struct {
	rec T
	seq uint64
}

// Buffer holds the latest record per open gesture of one category.
// All methods are safe for concurrent use.
type Buffer[T gesture.Record] struct {
	mu      sync.Mutex
	entries map[gesture.ID]entry[T]
	ledger  *Ledger
	// Stop frames of consumed gestures waiting for their final delivery (FinalDelivery only).
	finals map[gesture.ID]T
	seq    uint64

	category      gesture.Category
	consume       atomic.Bool
	finalDelivery bool
	log           *slog.Logger
	observe       Observer

	notified   atomic.Uint64
	suppressed atomic.Uint64
	delivered  atomic.Uint64
	pruned     atomic.Uint64
}

func New[T gesture.Record](opts Options) *Buffer[T] {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	b := &Buffer[T]{
		entries:       make(map[gesture.ID]entry[T]),
		ledger:        NewLedger(),
		finals:        make(map[gesture.ID]T),
		category:      opts.Category,
		finalDelivery: opts.FinalDelivery,
		log:           l.With("category", opts.Category.String()),
		observe:       opts.Observer,
	}
	b.consume.Store(opts.Consumption)
	return b
}

func (b *Buffer[T]) Category() gesture.Category { return b.category }

// SetConsumption toggles whether drains mark returned ids as consumed.
// Ids already in the ledger stay there until their gesture stops.
func (b *Buffer[T]) SetConsumption(enabled bool) { b.consume.Store(enabled) }

func (b *Buffer[T]) ConsumptionEnabled() bool { return b.consume.Load() }

// Notify applies one producer notification:
//   - Start always writes the record and forgets any earlier consumption of the id.
//   - Update writes the record unless the id was consumed, in which case it is dropped.
//   - Stop writes the record unless the id was consumed; a consumed id is marked
//     stopped in the ledger and cleared by the next drain.
//
// Records with an invalid phase are rejected with gesture.ErrInvalidPhase.
func (b *Buffer[T]) Notify(rec T) error {
	if err := gesture.Validate(rec); err != nil {
		return err
	}
	b.mu.Lock()
	kind := b.applyLocked(rec)
	b.mu.Unlock()
	b.emit(Event{Kind: kind, Category: b.category, ID: rec.GestureID(), Phase: rec.GesturePhase()})
	return nil
}

func (b *Buffer[T]) applyLocked(rec T) EventKind {
	id := rec.GestureID()
	switch rec.GesturePhase() {
	case gesture.PhaseStart:
		// A Start is a brand-new gesture even when the recognizer reuses an id.
		b.ledger.Remove(id)
		delete(b.finals, id)
	case gesture.PhaseUpdate:
		if b.ledger.Contains(id) {
			return EventSuppressed
		}
	case gesture.PhaseStop:
		if b.ledger.MarkStopped(id) {
			if b.finalDelivery {
				b.finals[id] = rec
			}
			return EventSuppressed
		}
	}
	b.seq++
	b.entries[id] = entry[T]{rec: rec, seq: b.seq}
	return EventNotified
}

// Take drains the buffer. Every record matching pred (nil matches all) is
// returned; with consumption enabled it also leaves the buffer and enters the
// ledger. Stop records are pruned from buffer and ledger whether they matched
// or not, so rejected gestures cannot accumulate.
//
// The result is ordered by ascending id and never contains an id twice.
func (b *Buffer[T]) Take(pred Predicate[T]) []T {
	if pred == nil {
		pred = All[T]
	}

	b.mu.Lock()
	snap := make([]entry[T], 0, len(b.entries))
	for _, e := range b.entries {
		snap = append(snap, e)
	}
	swept := b.ledger.Sweep()
	var finals []T
	for _, id := range swept {
		if rec, ok := b.finals[id]; ok {
			finals = append(finals, rec)
			delete(b.finals, id)
		}
	}
	b.mu.Unlock()

	slices.SortFunc(snap, func(x, y entry[T]) int { return cmp.Compare(x.rec.GestureID(), y.rec.GestureID()) })

	var (
		out []T
		evs []Event
	)
	for _, id := range swept {
		evs = append(evs, Event{Kind: EventPruned, Category: b.category, ID: id, Phase: gesture.PhaseStop})
	}
	for _, rec := range finals {
		if pred(rec) {
			out = append(out, rec)
			evs = append(evs, b.event(EventDelivered, rec))
		}
	}

	for _, e := range snap {
		matched := pred(e.rec)
		evs = b.settle(e, matched, &out, evs)
	}
	b.emit(evs...)

	if len(finals) > 0 {
		slices.SortFunc(out, func(x, y T) int { return cmp.Compare(x.GestureID(), y.GestureID()) })
	}
	return out
}

// settle applies the consume and prune steps for one snapshotted entry.
func (b *Buffer[T]) settle(e entry[T], matched bool, out *[]T, evs []Event) []Event {
	id := e.rec.GestureID()
	stopped := e.rec.GesturePhase() == gesture.PhaseStop

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, present := b.entries[id]
	if !present {
		// Taken or pruned by a concurrent drain.
		return evs
	}
	superseded := cur.seq != e.seq

	if matched {
		*out = append(*out, e.rec)
		evs = append(evs, b.event(EventDelivered, e.rec))
		if b.consume.Load() {
			delete(b.entries, id)
			if stopped {
				// Consuming a Stop frame ends the gesture: nothing is left to suppress.
				b.ledger.Remove(id)
				evs = append(evs, b.event(EventPruned, e.rec))
			} else {
				b.ledger.Add(id)
			}
			if superseded {
				// The producer wrote a newer frame after the snapshot. Reconcile it
				// against the ledger as if it had arrived after this consume.
				if kind := b.applyLocked(cur.rec); kind == EventSuppressed {
					evs = append(evs, b.event(EventSuppressed, cur.rec))
				}
			}
			return evs
		}
	}
	if stopped && !superseded {
		delete(b.entries, id)
		b.ledger.Remove(id)
		evs = append(evs, b.event(EventPruned, e.rec))
	}
	return evs
}

// Snapshot returns the buffered records in ascending id order without draining.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	out := make([]T, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.rec)
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(x, y T) int { return cmp.Compare(x.GestureID(), y.GestureID()) })
	return out
}

// Get returns the buffered record for id, if any.
func (b *Buffer[T]) Get(id gesture.ID) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e.rec, ok
}

// State reports where id currently is in its lifecycle.
func (b *Buffer[T]) State(id gesture.ID) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; ok {
		return StateOpen
	}
	if b.ledger.Contains(id) {
		return StateConsumed
	}
	return StateAbsent
}

// Consumed returns the ids currently in the ledger.
func (b *Buffer[T]) Consumed() []gesture.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.IDs()
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Reset drops every buffered record and ledger entry. Counters are kept.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	clear(b.entries)
	clear(b.finals)
	b.ledger.reset()
	b.mu.Unlock()
}

// Stats is a point-in-time view of one buffer.
type Stats struct {
	Category           gesture.Category `json:"category"`
	ConsumptionEnabled bool             `json:"consumption_enabled"`
	Buffered           int              `json:"buffered"`
	Consumed           int              `json:"consumed"`
	Notified           uint64           `json:"notified"`
	Suppressed         uint64           `json:"suppressed"`
	Delivered          uint64           `json:"delivered"`
	Pruned             uint64           `json:"pruned"`
}

func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	buffered, consumed := len(b.entries), b.ledger.Len()
	b.mu.Unlock()
	return Stats{
		Category:           b.category,
		ConsumptionEnabled: b.consume.Load(),
		Buffered:           buffered,
		Consumed:           consumed,
		Notified:           b.notified.Load(),
		Suppressed:         b.suppressed.Load(),
		Delivered:          b.delivered.Load(),
		Pruned:             b.pruned.Load(),
	}
}

func (b *Buffer[T]) event(k EventKind, rec T) Event {
	return Event{Kind: k, Category: b.category, ID: rec.GestureID(), Phase: rec.GesturePhase()}
}

func (b *Buffer[T]) emit(evs ...Event) {
	for _, ev := range evs {
		switch ev.Kind {
		case EventNotified:
			b.notified.Add(1)
		case EventSuppressed:
			b.suppressed.Add(1)
		case EventDelivered:
			b.delivered.Add(1)
			if b.consume.Load() {
				b.log.Debug("Consuming gesture", "id", ev.ID, "phase", ev.Phase.String())
			}
		case EventPruned:
			b.pruned.Add(1)
			b.log.Debug("Pruned stopped gesture", "id", ev.ID)
		}
		if b.observe != nil {
			b.observe(ev)
		}
	}
}
