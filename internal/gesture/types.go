package gesture

import (
	"math"
	"time"
)

// Vector is a point or direction in recognizer space (millimeters for positions).
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vector) Magnitude() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Circle is one frame of a circular finger motion.
type Circle struct {
	ID       ID            `json:"id" yaml:"id"`
	Phase    Phase         `json:"phase" yaml:"phase"`
	Progress float64       `json:"progress" yaml:"progress"` // completed turns, fractional
	Radius   float64       `json:"radius" yaml:"radius"`
	Center   Vector        `json:"center" yaml:"center"`
	Normal   Vector        `json:"normal" yaml:"normal"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Clockwise is set by the recognizer, which compares the pointable
	// direction with the circle normal.
	Clockwise bool `json:"clockwise" yaml:"clockwise"`
}

func (c Circle) GestureID() ID       { return c.ID }
func (c Circle) GesturePhase() Phase { return c.Phase }

// IsClockwise reports the rotation sense of the circle.
func (c Circle) IsClockwise() bool { return c.Clockwise }

// Swipe is one frame of a linear hand or finger movement.
type Swipe struct {
	ID            ID            `json:"id" yaml:"id"`
	Phase         Phase         `json:"phase" yaml:"phase"`
	Position      Vector        `json:"position" yaml:"position"`
	StartPosition Vector        `json:"start_position" yaml:"start_position"`
	Direction     Vector        `json:"direction" yaml:"direction"`
	Speed         float64       `json:"speed" yaml:"speed"` // mm/s
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

func (s Swipe) GestureID() ID       { return s.ID }
func (s Swipe) GesturePhase() Phase { return s.Phase }

// ScreenTap is a forward tap toward the screen. Recognizers usually report it
// as a single Stop frame.
type ScreenTap struct {
	ID        ID            `json:"id" yaml:"id"`
	Phase     Phase         `json:"phase" yaml:"phase"`
	Position  Vector        `json:"position" yaml:"position"`
	Direction Vector        `json:"direction" yaml:"direction"`
	Progress  float64       `json:"progress" yaml:"progress"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

func (s ScreenTap) GestureID() ID       { return s.ID }
func (s ScreenTap) GesturePhase() Phase { return s.Phase }

// KeyTap is a downward tap, as if pressing a key.
type KeyTap struct {
	ID        ID            `json:"id" yaml:"id"`
	Phase     Phase         `json:"phase" yaml:"phase"`
	Position  Vector        `json:"position" yaml:"position"`
	Direction Vector        `json:"direction" yaml:"direction"`
	Progress  float64       `json:"progress" yaml:"progress"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

func (k KeyTap) GestureID() ID       { return k.ID }
func (k KeyTap) GesturePhase() Phase { return k.Phase }

// Listener receives typed notifications from a recognizer bridge.
// Implementations must be safe to call from the sensor callback goroutine.
type Listener interface {
	OnCircleGesture(Circle) error
	OnSwipeGesture(Swipe) error
	OnScreenTapGesture(ScreenTap) error
	OnKeyTapGesture(KeyTap) error
}

// MinProgress matches circles that completed at least p turns (inclusive).
func MinProgress(p float64) func(Circle) bool {
	return func(c Circle) bool { return c.Progress >= p }
}

// MinProgressRadius matches circles with Progress >= p and Radius >= r.
// Pass p = 0 to filter on radius alone.
func MinProgressRadius(p, r float64) func(Circle) bool {
	return func(c Circle) bool { return c.Progress >= p && c.Radius >= r }
}
