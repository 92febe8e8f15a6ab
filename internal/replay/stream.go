// Package replay plays a recorded gesture stream into a System at a producer
// frame rate while a consumer polls it at its own rate.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loykin/jitter/internal/gesture"
)

// Entry is one recorded notification. At is the producer frame it is sent on;
// entries sharing a frame are sent in file order.
type Entry struct {
	At         int              `json:"at" yaml:"at"`
	Category   gesture.Category `json:"category" yaml:"category"`
	Phase      gesture.Phase    `json:"phase" yaml:"phase"`
	ID         gesture.ID       `json:"id" yaml:"id"`
	Progress   float64          `json:"progress,omitempty" yaml:"progress,omitempty"`
	Radius     float64          `json:"radius,omitempty" yaml:"radius,omitempty"`
	Clockwise  bool             `json:"clockwise,omitempty" yaml:"clockwise,omitempty"`
	Speed      float64          `json:"speed,omitempty" yaml:"speed,omitempty"`
	Position   gesture.Vector   `json:"position" yaml:"position"`
	Direction  gesture.Vector   `json:"direction" yaml:"direction"`
	DurationMS int64            `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// Record converts e into the category's record type.
func (e Entry) Record() (gesture.Record, error) {
	if !e.Phase.Valid() {
		return nil, fmt.Errorf("%w: %d", gesture.ErrInvalidPhase, uint8(e.Phase))
	}
	d := time.Duration(e.DurationMS) * time.Millisecond
	switch e.Category {
	case gesture.CategoryCircle:
		return gesture.Circle{ID: e.ID, Phase: e.Phase, Progress: e.Progress, Radius: e.Radius,
			Center: e.Position, Normal: e.Direction, Clockwise: e.Clockwise, Duration: d}, nil
	case gesture.CategorySwipe:
		return gesture.Swipe{ID: e.ID, Phase: e.Phase, Position: e.Position, Direction: e.Direction,
			Speed: e.Speed, Duration: d}, nil
	case gesture.CategoryScreenTap:
		return gesture.ScreenTap{ID: e.ID, Phase: e.Phase, Position: e.Position, Direction: e.Direction,
			Progress: e.Progress, Duration: d}, nil
	case gesture.CategoryKeyTap:
		return gesture.KeyTap{ID: e.ID, Phase: e.Phase, Position: e.Position, Direction: e.Direction,
			Progress: e.Progress, Duration: d}, nil
	}
	return nil, fmt.Errorf("%w: %d", gesture.ErrUnknownCategory, uint8(e.Category))
}

// Load reads a stream file: YAML (a list of entries) for .yaml/.yml, JSON
// lines otherwise. The result is ordered by frame.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = DecodeYAML(f)
	default:
		entries, err = DecodeJSONL(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// DecodeJSONL reads one JSON entry per line. Blank lines and lines starting
// with '#' are skipped.
func DecodeJSONL(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := check(e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sortByFrame(out), nil
}

// DecodeYAML reads a YAML sequence of entries.
func DecodeYAML(r io.Reader) ([]Entry, error) {
	var out []Entry
	if err := yaml.NewDecoder(r).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for i, e := range out {
		if err := check(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return sortByFrame(out), nil
}

func check(e Entry) error {
	if e.At < 0 {
		return fmt.Errorf("negative frame %d", e.At)
	}
	_, err := e.Record()
	return err
}

func sortByFrame(es []Entry) []Entry {
	slices.SortStableFunc(es, func(a, b Entry) int { return a.At - b.At })
	return es
}
