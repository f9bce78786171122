package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/stormline/internal/renderer/core"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STORMLINE_"

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Loader reads a configuration file and applies environment overrides.
type Loader struct {
	path      string
	readFile  func(string) ([]byte, error)
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv replaces the environment lookup.
func WithEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		if lookup != nil {
			l.lookupEnv = lookup
		}
	}
}

// NewLoader creates a loader for path. An empty path loads defaults and
// environment overrides only.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{
		path:      path,
		readFile:  os.ReadFile,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads path with environment overrides from the process.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Load builds a validated configuration. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := l.readFile(l.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
		default:
			if err := decode(l.path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays data onto cfg. Keys absent from the file keep their
// current values; unknown keys are rejected.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return &ParseError{Path: path, Message: err.Error(), Err: err}
		}
		return nil
	case ".toml", "":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			perr := &ParseError{Path: path, Message: err.Error(), Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, perr.Column = derr.Position()
			}
			return perr
		}
		return nil
	default:
		return core.Errorf("config", core.ErrInvalidParameter, "unsupported config format %q", filepath.Ext(path))
	}
}

type envBinding struct {
	name   string
	target any
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		{"COMPOSITION_STRATEGY", &c.Composition.Strategy},
		{"COMPOSITION_INTELLIGENT_POSITIONING", &c.Composition.IntelligentPositioning},
		{"COMPOSITION_PERFORMANCE_MONITORING", &c.Composition.PerformanceMonitoring},
		{"COMPOSITION_CACHE_MAX_AGE_MS", &c.Composition.CacheMaxAgeMS},
		{"COMPOSITION_CACHE_SLOTS", &c.Composition.CacheSlots},
		{"COMPOSITION_WIDE_CHAR_WIDTH", &c.Composition.WideCharWidth},
		{"RENDER_OUTPUT_CAPACITY", &c.Render.OutputCapacity},
		{"RENDER_CONTEXT_WINDOW", &c.Render.ContextWindow},
		{"RENDER_CACHE_ENTRIES", &c.Render.CacheEntries},
		{"RENDER_CACHE_TTL_MS", &c.Render.CacheTTLMS},
		{"RENDER_MAX_DIRTY_REGIONS", &c.Render.MaxDirtyRegions},
		{"RENDER_MAX_FPS", &c.Render.MaxFPS},
		{"RENDER_CURSOR_STYLE", &c.Render.CursorStyle},
		{"CONTINUATION_MODE", &c.Continuation.Mode},
		{"CONTINUATION_PROMPT", &c.Continuation.Prompt},
		{"CONTINUATION_SCRIPT", &c.Continuation.Script},
		{"THEME_NAME", &c.Theme.Name},
		{"THEME_PROMPT_COLOR", &c.Theme.PromptColor},
		{"THEME_PATH_COLOR", &c.Theme.PathColor},
		{"LOG_LEVEL", &c.Logging.Level},
		{"LOG_FILE", &c.Logging.File},
		{"LOG_MAX_SIZE_MB", &c.Logging.MaxSizeMB},
		{"LOG_MAX_BACKUPS", &c.Logging.MaxBackups},
	}
}

// applyEnv overrides cfg from STORMLINE_* variables. Empty values are
// treated as set.
func (l *Loader) applyEnv(cfg *Config) error {
	for _, b := range cfg.envBindings() {
		name := EnvPrefix + b.name
		val, ok := l.lookupEnv(name)
		if !ok {
			continue
		}
		switch t := b.target.(type) {
		case *string:
			*t = val
		case *int:
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return core.Errorf("config", core.ErrInvalidParameter, "%s: %v", name, err)
			}
			*t = n
		case *bool:
			v, err := parseBool(val)
			if err != nil {
				return core.Errorf("config", core.ErrInvalidParameter, "%s: %v", name, err)
			}
			*t = v
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}
