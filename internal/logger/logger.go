package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Level names accepted by SlogConfig.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats accepted by SlogConfig.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the unified logging configuration: structured logging via slog
// plus an optional rotating log file.
type Config struct {
	Slog SlogConfig `mapstructure:"slog"`
	File FileConfig `mapstructure:"file"`
}

// SlogConfig controls the slog handler.
type SlogConfig struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error (default info)
	Format     string `mapstructure:"format"`     // text or json (default text)
	Color      bool   `mapstructure:"color"`      // ANSI level colors, text format on a terminal only
	TimeStamps bool   `mapstructure:"timestamps"` // include time attribute
	Source     bool   `mapstructure:"source"`     // include source file:line
}

// FileConfig describes a rotating log file. Rotation parameters follow
// lumberjack semantics. An empty Path disables file logging.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // Gzip rotated files
}

// Writer returns the rotating file writer, or nil when no path is configured.
func (f FileConfig) Writer() io.WriteCloser {
	if f.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   f.Path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Validate checks level and format names.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Slog.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Slog.Format) {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Slog.Format)
	}
	return nil
}

// NewSlogger builds a logger writing to the configured file, or to stderr
// when no file is set. The returned closer releases the file and may be nil.
func (c Config) NewSlogger() (*slog.Logger, io.Closer) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
		color  = c.Slog.Color
	)
	if fw := c.File.Writer(); fw != nil {
		w, closer = fw, fw
		color = false
	}
	return c.newSlogger(w, color), closer
}

// NewSloggerTo builds a logger writing to w; used by tests and embedders.
func (c Config) NewSloggerTo(w io.Writer) *slog.Logger { return c.newSlogger(w, c.Slog.Color) }

func (c Config) newSlogger(w io.Writer, color bool) *slog.Logger {
	lvl, _ := ParseLevel(c.Slog.Level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	var h slog.Handler
	switch {
	case strings.EqualFold(c.Slog.Format, FormatJSON):
		h = slog.NewJSONHandler(w, opts)
	case color:
		h = NewColorTextHandler(w, opts, c.Slog.TimeStamps)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
