// Package config loads mapsync settings from a TOML file and the
// environment.
//
//	debounce  = "16ms"
//	log_level = "debug"
//	journal   = "mapsync.db"
//
//	[background]
//	streets   = "Country border"
//	satellite = "Boundary line"
//
// The [background] table maps style names to their top background layer,
// the layer "$background" anchors resolve to. Styles not listed fall back to
// engine.DefaultBackground. MAPSYNC_LOG_LEVEL and MAPSYNC_DEBOUNCE override
// the file.
package config

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/team-wildflyer/mapsync/internal/engine"
)

// Environment overrides.
const (
	EnvLogLevel = "MAPSYNC_LOG_LEVEL"
	EnvDebounce = "MAPSYNC_DEBOUNCE"
)

// Config is the resolved configuration.
type Config struct {
	Debounce   time.Duration
	LogLevel   slog.Level
	Journal    string
	Background map[string]string
}

type fileConfig struct {
	Debounce   string            `toml:"debounce"`
	LogLevel   string            `toml:"log_level"`
	Journal    string            `toml:"journal"`
	Background map[string]string `toml:"background"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debounce:   engine.DefaultDebounce,
		LogLevel:   slog.LevelInfo,
		Background: map[string]string{},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = loadFile(cfg, path)
		if err != nil {
			return Config{}, err
		}
	}
	return ApplyEnv(cfg, os.Getenv)
}

func loadFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("debounce") {
		d, err := parseDebounce(raw.Debounce)
		if err != nil {
			return Config{}, fmt.Errorf("parse debounce: %w", err)
		}
		cfg.Debounce = d
	}

	if meta.IsDefined("log_level") {
		level, err := ParseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("journal") {
		cfg.Journal = strings.TrimSpace(raw.Journal)
	}

	if meta.IsDefined("background") {
		for style, layer := range raw.Background {
			layer = strings.TrimSpace(layer)
			if layer == "" {
				return Config{}, fmt.Errorf("background for style %q is empty", style)
			}
			cfg.Background[style] = layer
		}
	}
	return cfg, nil
}

// ApplyEnv applies MAPSYNC_* overrides read through getenv.
func ApplyEnv(cfg Config, getenv func(string) string) (Config, error) {
	cfg.Background = maps.Clone(cfg.Background)

	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}
	if v := strings.TrimSpace(getenv(EnvDebounce)); v != "" {
		d, err := parseDebounce(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvDebounce, err)
		}
		cfg.Debounce = d
	}
	return cfg, nil
}

func parseDebounce(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("debounce %s is negative", d)
	}
	return d, nil
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", s)
	}
	return level, nil
}

// BackgroundHook resolves "$background" from the [background] table,
// falling back to engine.DefaultBackground.
func (c Config) BackgroundHook() engine.BackgroundHook {
	table := maps.Clone(c.Background)
	return func(style string) string {
		if id, ok := table[style]; ok {
			return id
		}
		return engine.DefaultBackground(style)
	}
}

// EngineOptions returns the engine options this configuration implies.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithDebounce(c.Debounce),
		engine.WithBackgroundHook(c.BackgroundHook()),
	}
}
