// Package gesture defines the typed gesture notifications consumed by the
// buffering engine: ids, lifecycle phases, categories and the per-category
// record types handed over by a recognizer.
package gesture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPhase is returned for a notification whose phase is not one of start, update or stop.
	ErrInvalidPhase = errors.New("invalid gesture phase")
	// ErrUnknownCategory is returned when a category name cannot be resolved.
	ErrUnknownCategory = errors.New("unknown gesture category")
)

// ID identifies a gesture within a single category. Ids are assigned by the
// recognizer and are only unique while a gesture is open.
type ID uint64

// Phase is the lifecycle stage a notification reports.
// The zero value is invalid so that an unset phase is never mistaken for Start.
type Phase uint8

const (
	PhaseStart Phase = iota + 1
	PhaseUpdate
	PhaseStop
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseUpdate:
		return "update"
	case PhaseStop:
		return "stop"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the three lifecycle phases.
func (p Phase) Valid() bool { return p >= PhaseStart && p <= PhaseStop }

// ParsePhase accepts "start", "update" or "stop" (case-insensitive).
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", "started":
		return PhaseStart, nil
	case "update", "updated":
		return PhaseUpdate, nil
	case "stop", "stopped":
		return PhaseStop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPhase, uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Category is one of the independent gesture families. Categories never share state.
type Category uint8

const (
	CategoryCircle Category = iota + 1
	CategorySwipe
	CategoryScreenTap
	CategoryKeyTap
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryCircle, CategorySwipe, CategoryScreenTap, CategoryKeyTap}

func (c Category) String() string {
	switch c {
	case CategoryCircle:
		return "circle"
	case CategorySwipe:
		return "swipe"
	case CategoryScreenTap:
		return "screen_tap"
	case CategoryKeyTap:
		return "key_tap"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ParseCategory resolves names such as "circle", "screen_tap", "screen-tap" or "keytap".
func ParseCategory(s string) (Category, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("-", "", "_", "", " ", "").Replace(n)
	switch n {
	case "circle":
		return CategoryCircle, nil
	case "swipe":
		return CategorySwipe, nil
	case "screentap":
		return CategoryScreenTap, nil
	case "keytap":
		return CategoryKeyTap, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Record is the capability a buffered notification must expose: an id and a phase.
// Filter predicates read the remaining attributes of the concrete type.
type Record interface {
	GestureID() ID
	GesturePhase() Phase
}

// Validate fails fast on records that would corrupt buffer state.
func Validate(r Record) error {
	if !r.GesturePhase().Valid() {
		return fmt.Errorf("gesture %d: %w", r.GestureID(), ErrInvalidPhase)
	}
	return nil
}
