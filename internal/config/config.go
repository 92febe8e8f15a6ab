package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
	"github.com/loykin/jitter/internal/logger"
	"github.com/loykin/jitter/internal/system"
	jtls "github.com/loykin/jitter/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. JITTER_SERVER_LISTEN.
const EnvPrefix = "JITTER"

// Config represents the top-level TOML structure.
type Config struct {
	Consumption ConsumptionConfig `toml:"consumption" mapstructure:"consumption"`
	Gestures    GesturesConfig    `toml:"gestures" mapstructure:"gestures"`
	Log         logger.Config     `toml:"log" mapstructure:"log"`
	Server      ServerConfig      `toml:"server" mapstructure:"server"`
	Metrics     MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
	History     HistoryConfig     `toml:"history" mapstructure:"history"`
	Stats       StatsConfig       `toml:"stats" mapstructure:"stats"`
	Replay      ReplayConfig      `toml:"replay" mapstructure:"replay"`
}

// ConsumptionConfig sets the consumption flag globally with optional
// per-category overrides. Unset overrides follow Enabled.
type ConsumptionConfig struct {
	Enabled       bool  `toml:"enabled" mapstructure:"enabled"`
	Circle        *bool `toml:"circle" mapstructure:"circle"`
	Swipe         *bool `toml:"swipe" mapstructure:"swipe"`
	ScreenTap     *bool `toml:"screen_tap" mapstructure:"screen_tap"`
	KeyTap        *bool `toml:"key_tap" mapstructure:"key_tap"`
	FinalDelivery bool  `toml:"final_delivery" mapstructure:"final_delivery"`
}

// Overrides returns the per-category values that are set.
func (c ConsumptionConfig) Overrides() map[gesture.Category]bool {
	m := make(map[gesture.Category]bool)
	for cat, v := range map[gesture.Category]*bool{
		gesture.CategoryCircle:    c.Circle,
		gesture.CategorySwipe:     c.Swipe,
		gesture.CategoryScreenTap: c.ScreenTap,
		gesture.CategoryKeyTap:    c.KeyTap,
	} {
		if v != nil {
			m[cat] = *v
		}
	}
	return m
}

type GesturesConfig struct {
	// Enabled lists accepted categories by name; empty enables all.
	Enabled []string `toml:"enabled" mapstructure:"enabled"`
}

// Categories parses Enabled.
func (g GesturesConfig) Categories() ([]gesture.Category, error) {
	out := make([]gesture.Category, 0, len(g.Enabled))
	for _, name := range g.Enabled {
		c, err := gesture.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type ServerConfig struct {
	Listen   string      `toml:"listen" mapstructure:"listen"`
	BasePath string      `toml:"base_path" mapstructure:"base_path"`
	TLS      jtls.Config `toml:"tls" mapstructure:"tls"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen serves
// /metrics on the API listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig lists the delivery history sinks by DSN.
type HistoryConfig struct {
	Sinks       []string      `toml:"sinks" mapstructure:"sinks"`
	QueueSize   int           `toml:"queue_size" mapstructure:"queue_size"`
	SendTimeout time.Duration `toml:"send_timeout" mapstructure:"send_timeout"`
}

// RecorderOptions maps the section onto history.RecorderOptions without sinks.
func (h HistoryConfig) RecorderOptions() history.RecorderOptions {
	return history.RecorderOptions{QueueSize: h.QueueSize, SendTimeout: h.SendTimeout}
}

// StatsConfig schedules the periodic stats report.
type StatsConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Schedule string `toml:"schedule" mapstructure:"schedule"`
}

// ReplayConfig describes a recorded gesture stream played back by "jitter replay".
type ReplayConfig struct {
	File        string  `toml:"file" mapstructure:"file"`
	ProducerFPS float64 `toml:"producer_fps" mapstructure:"producer_fps"`
	ConsumerFPS float64 `toml:"consumer_fps" mapstructure:"consumer_fps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("consumption.enabled", true)
	v.SetDefault("consumption.final_delivery", false)
	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("server.listen", "127.0.0.1:8480")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("history.queue_size", history.DefaultQueueSize)
	v.SetDefault("history.send_timeout", history.DefaultSendTimeout)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.schedule", "@every 30s")
	v.SetDefault("replay.producer_fps", 120.0)
	v.SetDefault("replay.consumer_fps", 30.0)
}

var envOnlyKeys = []string{
	"consumption.circle", "consumption.swipe", "consumption.screen_tap", "consumption.key_tap",
	"gestures.enabled", "history.sinks", "metrics.listen", "replay.file",
	"log.file.path", "log.slog.color", "log.slog.source",
}

// Default returns the configuration used when no file is given, without
// environment overrides.
func Default() (*Config, error) {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// LoadConfig reads a TOML file, applies defaults and JITTER_* environment
// overrides, and validates the result. An empty path loads defaults and
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows about.
	for _, k := range envOnlyKeys {
		_ = v.BindEnv(k)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Gestures.Categories(); err != nil {
		errs = append(errs, fmt.Errorf("gestures.enabled: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path must start with '/': %q", c.Server.BasePath))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.tls: %w", err))
	}
	if c.History.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("history.queue_size must be >= 0, got %d", c.History.QueueSize))
	}
	for i, dsn := range c.History.Sinks {
		if strings.TrimSpace(dsn) == "" {
			errs = append(errs, fmt.Errorf("history.sinks[%d] is empty", i))
		}
	}
	if c.Stats.Enabled {
		if _, err := cron.ParseStandard(c.Stats.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("stats.schedule %q: %w", c.Stats.Schedule, err))
		}
	}
	if c.Replay.ProducerFPS <= 0 || c.Replay.ConsumerFPS <= 0 {
		errs = append(errs, fmt.Errorf("replay fps must be positive (producer=%g consumer=%g)", c.Replay.ProducerFPS, c.Replay.ConsumerFPS))
	}
	return errors.Join(errs...)
}

// SystemOptions maps the consumption and gesture sections onto system.Options.
// Logger and Recorder are left for the caller.
func (c *Config) SystemOptions() system.Options {
	cats, _ := c.Gestures.Categories()
	return system.Options{
		Consumption:   c.Consumption.Enabled,
		PerCategory:   c.Consumption.Overrides(),
		FinalDelivery: c.Consumption.FinalDelivery,
		Enabled:       cats,
	}
}
