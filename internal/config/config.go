// Package config loads the stormline configuration.
//
// Values are layered: built-in defaults, then a TOML or YAML file, then
// STORMLINE_* environment variables. A Watcher reloads the file when it
// changes on disk.
package config

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/stormline/internal/renderer/core"
)

// Config is the complete configuration.
type Config struct {
	Composition  CompositionConfig  `toml:"composition" yaml:"composition"`
	Render       RenderConfig       `toml:"render" yaml:"render"`
	Continuation ContinuationConfig `toml:"continuation" yaml:"continuation"`
	Theme        ThemeConfig        `toml:"theme" yaml:"theme"`
	Logging      LoggingConfig      `toml:"logging" yaml:"logging"`
}

// CompositionConfig configures the composition engine.
type CompositionConfig struct {
	// Strategy is one of adaptive, simple, multiline, complex, ascii_art.
	Strategy               string `toml:"strategy" yaml:"strategy"`
	IntelligentPositioning bool   `toml:"intelligent_positioning" yaml:"intelligent_positioning"`
	PerformanceMonitoring  bool   `toml:"performance_monitoring" yaml:"performance_monitoring"`
	CacheMaxAgeMS          int    `toml:"cache_max_age_ms" yaml:"cache_max_age_ms"`
	CacheSlots             int    `toml:"cache_slots" yaml:"cache_slots"`

	// WideCharWidth measures East Asian wide characters as two columns.
	WideCharWidth bool `toml:"wide_char_width" yaml:"wide_char_width"`
}

// RenderConfig configures the render controller.
type RenderConfig struct {
	OutputCapacity  int    `toml:"output_capacity" yaml:"output_capacity"`
	ContextWindow   int    `toml:"context_window" yaml:"context_window"`
	CacheEntries    int    `toml:"cache_entries" yaml:"cache_entries"`
	CacheTTLMS      int    `toml:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	MaxDirtyRegions int    `toml:"max_dirty_regions" yaml:"max_dirty_regions"`
	MaxFPS          int    `toml:"max_fps" yaml:"max_fps"`
	CursorStyle     string `toml:"cursor_style" yaml:"cursor_style"`
}

// Continuation modes.
const (
	ContinuationStatic  = "static"
	ContinuationContext = "context"
	ContinuationLua     = "lua"
)

// ContinuationConfig selects the continuation prompt provider.
type ContinuationConfig struct {
	Mode   string `toml:"mode" yaml:"mode"`
	Prompt string `toml:"prompt" yaml:"prompt"`

	// Script is the Lua file defining continuation_prompt(line, command).
	Script string `toml:"script" yaml:"script"`
}

// ThemeConfig colors the prompt. Colors are hex strings such as "#5fafff".
type ThemeConfig struct {
	Name        string `toml:"name" yaml:"name"`
	PromptColor string `toml:"prompt_color" yaml:"prompt_color"`
	PathColor   string `toml:"path_color" yaml:"path_color"`
}

// LoggingConfig configures diagnostics output.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`

	// File is the log file path. Empty disables logging.
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Composition: CompositionConfig{
			Strategy:               "adaptive",
			IntelligentPositioning: true,
			CacheMaxAgeMS:          5000,
			CacheSlots:             16,
		},
		Render: RenderConfig{
			OutputCapacity:  64 * 1024,
			ContextWindow:   64,
			CacheEntries:    1000,
			CacheTTLMS:      30000,
			MaxDirtyRegions: 32,
			MaxFPS:          60,
			CursorStyle:     "bar",
		},
		Continuation: ContinuationConfig{
			Mode:   ContinuationContext,
			Prompt: "> ",
		},
		Theme: ThemeConfig{
			Name:        "default",
			PromptColor: "#5fafff",
			PathColor:   "#87d787",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// Validate checks every value for range and enumeration errors.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.ReplaceAll(c.Composition.Strategy, "-", "_")) {
	case "", "adaptive", "simple", "multiline", "complex", "ascii_art", "asciiart":
	default:
		return invalid("composition.strategy", c.Composition.Strategy)
	}
	if c.Composition.CacheMaxAgeMS < 0 {
		return invalid("composition.cache_max_age_ms", c.Composition.CacheMaxAgeMS)
	}
	if c.Composition.CacheSlots < 1 {
		return invalid("composition.cache_slots", c.Composition.CacheSlots)
	}

	r := c.Render
	if r.OutputCapacity < 64 {
		return invalid("render.output_capacity", r.OutputCapacity)
	}
	if r.ContextWindow < 0 {
		return invalid("render.context_window", r.ContextWindow)
	}
	if r.CacheEntries < 1 {
		return invalid("render.cache_entries", r.CacheEntries)
	}
	if r.CacheTTLMS < 0 {
		return invalid("render.cache_ttl_ms", r.CacheTTLMS)
	}
	if r.MaxDirtyRegions < 1 {
		return invalid("render.max_dirty_regions", r.MaxDirtyRegions)
	}
	if r.MaxFPS < 0 {
		return invalid("render.max_fps", r.MaxFPS)
	}
	switch strings.ToLower(r.CursorStyle) {
	case "", "default", "block", "bar", "underline":
	default:
		return invalid("render.cursor_style", r.CursorStyle)
	}

	switch c.Continuation.Mode {
	case ContinuationStatic, ContinuationContext:
	case ContinuationLua:
		if c.Continuation.Script == "" {
			return core.Errorf("config", core.ErrInvalidParameter, "continuation.script is required in lua mode")
		}
	default:
		return invalid("continuation.mode", c.Continuation.Mode)
	}

	for path, hex := range map[string]string{
		"theme.prompt_color": c.Theme.PromptColor,
		"theme.path_color":   c.Theme.PathColor,
	} {
		if hex == "" {
			continue
		}
		if _, err := colorful.Hex(hex); err != nil {
			return invalid(path, hex)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return invalid("logging.max_size_mb", c.Logging.MaxSizeMB)
	}
	return nil
}

func invalid(path string, value any) error {
	return core.Errorf("config", core.ErrInvalidParameter, "%s: invalid value %v", path, value)
}
