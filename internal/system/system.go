// Package system ties the four per-category gesture buffers together behind
// the producer and consumer interfaces, and feeds their events to metrics and
// the delivery history.
package system

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/jitter/internal/buffer"
	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
	"github.com/loykin/jitter/internal/metrics"
)

var (
	// ErrCategoryDisabled is returned for notifications of a category that is not enabled.
	ErrCategoryDisabled = errors.New("gesture category disabled")
	// ErrUnsupportedFilter is returned when a batch filter does not apply to the category.
	ErrUnsupportedFilter = errors.New("filter not supported for category")
)

// Recorder receives delivery history events. It must not block.
type Recorder interface {
	Record(history.Event) bool
}

// Options configures a System.
type Options struct {
	// Consumption is the default for every category.
	Consumption bool
	// PerCategory overrides Consumption for single categories.
	PerCategory map[gesture.Category]bool
	// FinalDelivery delivers the Stop frame of a consumed gesture once.
	FinalDelivery bool
	// Enabled lists the accepted categories; empty enables all.
	Enabled []gesture.Category

	Logger   *slog.Logger
	Recorder Recorder
}

// System is the buffered gesture delivery engine. A producer calls the
// On*Gesture methods at frame rate; consumers poll the Next*Batch methods at
// their own rate. All methods are safe for concurrent use.
type System struct {
	circles    *buffer.Buffer[gesture.Circle]
	swipes     *buffer.Buffer[gesture.Swipe]
	screenTaps *buffer.Buffer[gesture.ScreenTap]
	keyTaps    *buffer.Buffer[gesture.KeyTap]

	enabled map[gesture.Category]bool
	log     *slog.Logger
	rec     Recorder
}

var _ gesture.Listener = (*System)(nil)

func New(opts Options) *System {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	s := &System{
		enabled: make(map[gesture.Category]bool, len(gesture.Categories)),
		log:     l,
		rec:     opts.Recorder,
	}
	if len(opts.Enabled) == 0 {
		for _, c := range gesture.Categories {
			s.enabled[c] = true
		}
	}
	for _, c := range opts.Enabled {
		s.enabled[c] = true
	}

	bo := func(c gesture.Category) buffer.Options {
		consume := opts.Consumption
		if v, ok := opts.PerCategory[c]; ok {
			consume = v
		}
		return buffer.Options{
			Category:      c,
			Consumption:   consume,
			FinalDelivery: opts.FinalDelivery,
			Logger:        l,
			Observer:      s.observe,
		}
	}
	s.circles = buffer.New[gesture.Circle](bo(gesture.CategoryCircle))
	s.swipes = buffer.New[gesture.Swipe](bo(gesture.CategorySwipe))
	s.screenTaps = buffer.New[gesture.ScreenTap](bo(gesture.CategoryScreenTap))
	s.keyTaps = buffer.New[gesture.KeyTap](bo(gesture.CategoryKeyTap))
	return s
}

// Enabled reports whether notifications of c are accepted.
func (s *System) Enabled(c gesture.Category) bool { return s.enabled[c] }

func (s *System) OnCircleGesture(g gesture.Circle) error {
	return notify(s, s.circles, g)
}

func (s *System) OnSwipeGesture(g gesture.Swipe) error {
	return notify(s, s.swipes, g)
}

func (s *System) OnScreenTapGesture(g gesture.ScreenTap) error {
	return notify(s, s.screenTaps, g)
}

func (s *System) OnKeyTapGesture(g gesture.KeyTap) error {
	return notify(s, s.keyTaps, g)
}

// Notify dispatches a record of any category to its buffer.
func (s *System) Notify(rec gesture.Record) error {
	switch g := rec.(type) {
	case gesture.Circle:
		return s.OnCircleGesture(g)
	case gesture.Swipe:
		return s.OnSwipeGesture(g)
	case gesture.ScreenTap:
		return s.OnScreenTapGesture(g)
	case gesture.KeyTap:
		return s.OnKeyTapGesture(g)
	}
	return fmt.Errorf("%w: %T", gesture.ErrUnknownCategory, rec)
}

func notify[T gesture.Record](s *System, b *buffer.Buffer[T], rec T) error {
	if !s.enabled[b.Category()] {
		return fmt.Errorf("%w: %s", ErrCategoryDisabled, b.Category())
	}
	if err := b.Notify(rec); err != nil {
		return fmt.Errorf("%s gesture %d: %w", b.Category(), rec.GestureID(), err)
	}
	return nil
}

// NextCircleBatch returns every buffered circle gesture.
func (s *System) NextCircleBatch() []gesture.Circle {
	return take(s.circles, nil)
}

// NextCircleBatchProgress returns circles with Progress >= minProgress.
func (s *System) NextCircleBatchProgress(minProgress float64) []gesture.Circle {
	return take(s.circles, gesture.MinProgress(minProgress))
}

// NextCircleBatchFiltered returns circles with Progress >= minProgress and
// Radius >= minRadius.
func (s *System) NextCircleBatchFiltered(minProgress, minRadius float64) []gesture.Circle {
	return take(s.circles, gesture.MinProgressRadius(minProgress, minRadius))
}

func (s *System) NextSwipeBatch() []gesture.Swipe {
	return take(s.swipes, nil)
}

func (s *System) NextScreenTapBatch() []gesture.ScreenTap {
	return take(s.screenTaps, nil)
}

func (s *System) NextKeyTapBatch() []gesture.KeyTap {
	return take(s.keyTaps, nil)
}

func take[T gesture.Record](b *buffer.Buffer[T], pred buffer.Predicate[T]) []T {
	start := time.Now()
	out := b.Take(pred)
	cat := b.Category().String()
	metrics.ObserveDrain(cat, time.Since(start).Seconds())
	st := b.Stats()
	metrics.SetBufferState(cat, st.Buffered, st.Consumed)
	return out
}

// Filter narrows a category-generic batch. Nil fields do not filter.
// Only circles support filtering.
type Filter struct {
	MinProgress *float64
	MinRadius   *float64
}

func (f Filter) empty() bool { return f.MinProgress == nil && f.MinRadius == nil }

// Batch drains one category and returns its records as gesture.Record values.
func (s *System) Batch(c gesture.Category, f Filter) ([]gesture.Record, error) {
	if c != gesture.CategoryCircle && !f.empty() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, c)
	}
	switch c {
	case gesture.CategoryCircle:
		var p, r float64
		if f.MinProgress != nil {
			p = *f.MinProgress
		}
		if f.MinRadius == nil {
			if f.MinProgress == nil {
				return records(s.NextCircleBatch()), nil
			}
			return records(s.NextCircleBatchProgress(p)), nil
		}
		r = *f.MinRadius
		return records(s.NextCircleBatchFiltered(p, r)), nil
	case gesture.CategorySwipe:
		return records(s.NextSwipeBatch()), nil
	case gesture.CategoryScreenTap:
		return records(s.NextScreenTapBatch()), nil
	case gesture.CategoryKeyTap:
		return records(s.NextKeyTapBatch()), nil
	}
	return nil, fmt.Errorf("%w: %d", gesture.ErrUnknownCategory, uint8(c))
}

func records[T gesture.Record](in []T) []gesture.Record {
	out := make([]gesture.Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// SetConsumption changes the consumption flag of one category at runtime.
func (s *System) SetConsumption(c gesture.Category, enabled bool) error {
	switch c {
	case gesture.CategoryCircle:
		s.circles.SetConsumption(enabled)
	case gesture.CategorySwipe:
		s.swipes.SetConsumption(enabled)
	case gesture.CategoryScreenTap:
		s.screenTaps.SetConsumption(enabled)
	case gesture.CategoryKeyTap:
		s.keyTaps.SetConsumption(enabled)
	default:
		return fmt.Errorf("%w: %d", gesture.ErrUnknownCategory, uint8(c))
	}
	s.log.Info("Consumption changed", "category", c.String(), "enabled", enabled)
	return nil
}

// SetConsumptionAll changes the consumption flag of every category.
func (s *System) SetConsumptionAll(enabled bool) {
	for _, c := range gesture.Categories {
		_ = s.SetConsumption(c, enabled)
	}
}

// Stats returns one entry per category in gesture.Categories order.
func (s *System) Stats() []buffer.Stats {
	return []buffer.Stats{
		s.circles.Stats(),
		s.swipes.Stats(),
		s.screenTaps.Stats(),
		s.keyTaps.Stats(),
	}
}

// Reset empties every buffer and ledger.
func (s *System) Reset() {
	s.circles.Reset()
	s.swipes.Reset()
	s.screenTaps.Reset()
	s.keyTaps.Reset()
	s.log.Info("Gesture buffers reset")
}

func (s *System) observe(ev buffer.Event) {
	cat := ev.Category.String()
	var typ history.EventType
	switch ev.Kind {
	case buffer.EventNotified:
		metrics.IncNotification(cat, ev.Phase.String())
		return
	case buffer.EventSuppressed:
		metrics.IncSuppressed(cat, ev.Phase.String())
		typ = history.EventSuppressed
	case buffer.EventDelivered:
		metrics.IncDelivered(cat)
		typ = history.EventDelivered
	case buffer.EventPruned:
		metrics.IncPruned(cat)
		typ = history.EventPruned
	default:
		return
	}
	if s.rec != nil {
		s.rec.Record(history.Event{
			Type:       typ,
			Category:   ev.Category,
			GestureID:  ev.ID,
			Phase:      ev.Phase,
			OccurredAt: time.Now().UTC(),
		})
	}
}
