// Package jitter is the embeddable facade of the gesture delivery engine.
// A recognizer pushes frames through the Listener methods of a System and
// consumers pull batches with the Next*Batch methods at their own rate.
package jitter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/jitter/internal/config"
	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
	"github.com/loykin/jitter/internal/metrics"
	iapi "github.com/loykin/jitter/internal/server"
	"github.com/loykin/jitter/internal/system"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type System = system.System

type Options = system.Options

type Filter = system.Filter

type Listener = gesture.Listener

type Record = gesture.Record

type (
	ID        = gesture.ID
	Phase     = gesture.Phase
	Category  = gesture.Category
	Vector    = gesture.Vector
	Circle    = gesture.Circle
	Swipe     = gesture.Swipe
	ScreenTap = gesture.ScreenTap
	KeyTap    = gesture.KeyTap
)

const (
	PhaseStart  = gesture.PhaseStart
	PhaseUpdate = gesture.PhaseUpdate
	PhaseStop   = gesture.PhaseStop
)

const (
	CategoryCircle    = gesture.CategoryCircle
	CategorySwipe     = gesture.CategorySwipe
	CategoryScreenTap = gesture.CategoryScreenTap
	CategoryKeyTap    = gesture.CategoryKeyTap
)

var (
	ErrInvalidPhase      = gesture.ErrInvalidPhase
	ErrUnknownCategory   = gesture.ErrUnknownCategory
	ErrCategoryDisabled  = system.ErrCategoryDisabled
	ErrUnsupportedFilter = system.ErrUnsupportedFilter
)

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Recorder = history.Recorder

// New returns a System with every category enabled and consumption on.
func New() *System { return system.New(Options{Consumption: true}) }

// NewWithOptions returns a System configured by opts.
func NewWithOptions(opts Options) *System { return system.New(opts) }

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// NewRecorder starts a history recorder writing to sinks. Pass it as
// Options.Recorder and Close it on shutdown.
func NewRecorder(sinks ...HistorySink) *Recorder {
	return history.NewRecorder(history.RecorderOptions{Sinks: sinks})
}

// NewHandler returns the HTTP API for s mounted under basePath, ready to be
// embedded in any mux or framework.
func NewHandler(s *System, basePath string) http.Handler {
	return iapi.NewRouter(s, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func MetricsHandler() http.Handler { return metrics.Handler() }
