package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/stormline/internal/renderer/core"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Composition.CacheMaxAgeMS != 5000 || cfg.Composition.CacheSlots != 16 {
		t.Errorf("composition defaults = %+v", cfg.Composition)
	}
	if cfg.Render.CacheEntries != 1000 || cfg.Render.CacheTTLMS != 30000 || cfg.Render.MaxFPS != 60 {
		t.Errorf("render defaults = %+v", cfg.Render)
	}
	if !cfg.Composition.IntelligentPositioning || cfg.Composition.WideCharWidth {
		t.Error("unexpected composition toggles")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"strategy", func(c *Config) { c.Composition.Strategy = "fancy" }},
		{"cache age", func(c *Config) { c.Composition.CacheMaxAgeMS = -1 }},
		{"cache slots", func(c *Config) { c.Composition.CacheSlots = 0 }},
		{"output capacity", func(c *Config) { c.Render.OutputCapacity = 8 }},
		{"context window", func(c *Config) { c.Render.ContextWindow = -1 }},
		{"cache entries", func(c *Config) { c.Render.CacheEntries = 0 }},
		{"cache ttl", func(c *Config) { c.Render.CacheTTLMS = -5 }},
		{"dirty regions", func(c *Config) { c.Render.MaxDirtyRegions = 0 }},
		{"fps", func(c *Config) { c.Render.MaxFPS = -1 }},
		{"cursor style", func(c *Config) { c.Render.CursorStyle = "blink" }},
		{"continuation mode", func(c *Config) { c.Continuation.Mode = "magic" }},
		{"lua without script", func(c *Config) { c.Continuation.Mode = ContinuationLua }},
		{"prompt color", func(c *Config) { c.Theme.PromptColor = "blue" }},
		{"path color", func(c *Config) { c.Theme.PathColor = "#12" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log size", func(c *Config) { c.Logging.MaxSizeMB = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, core.ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "stormline.toml", `
[composition]
strategy = "simple"
cache_slots = 4

[render]
max_fps = 30

[continuation]
mode = "static"
prompt = "... "

[theme]
prompt_color = "#ff8700"
`)

	cfg, err := NewLoader(path, WithEnv(noEnv)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Composition.Strategy != "simple" || cfg.Composition.CacheSlots != 4 {
		t.Errorf("composition = %+v", cfg.Composition)
	}
	if cfg.Render.MaxFPS != 30 {
		t.Errorf("MaxFPS = %d, want 30", cfg.Render.MaxFPS)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Render.CacheEntries != 1000 || !cfg.Composition.IntelligentPositioning {
		t.Errorf("defaults lost: %+v %+v", cfg.Render, cfg.Composition)
	}
	if cfg.Continuation.Prompt != "... " || cfg.Theme.PromptColor != "#ff8700" {
		t.Errorf("continuation = %+v theme = %+v", cfg.Continuation, cfg.Theme)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "stormline.yaml", `
composition:
  strategy: multiline
  wide_char_width: true
render:
  cache_ttl_ms: 0
logging:
  level: debug
`)

	cfg, err := NewLoader(path, WithEnv(noEnv)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Composition.Strategy != "multiline" || !cfg.Composition.WideCharWidth {
		t.Errorf("composition = %+v", cfg.Composition)
	}
	if cfg.Render.CacheTTLMS != 0 || cfg.Logging.Level != "debug" {
		t.Errorf("render = %+v logging = %+v", cfg.Render, cfg.Logging)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	if _, err := NewLoader(path, WithEnv(noEnv)).Load(); err != nil {
		t.Errorf("Load() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml"), WithEnv(noEnv)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.MaxFPS != Default().Render.MaxFPS {
		t.Error("missing file should load defaults")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		line    int
	}{
		{"toml syntax", "bad.toml", "[render]\nmax_fps = = 3\n", 2},
		{"toml unknown key", "unknown.toml", "[render]\nframes = 3\n", 0},
		{"yaml unknown key", "unknown.yaml", "render:\n  frames: 3\n", 0},
		{"yaml type", "type.yaml", "render:\n  max_fps: fast\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := NewLoader(path, WithEnv(noEnv)).Load()

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Load() error = %v, want *ParseError", err)
			}
			if tt.line > 0 && perr.Line != tt.line {
				t.Errorf("Line = %d, want %d", perr.Line, tt.line)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "range.toml", "[render]\nmax_fps = -3\n")
	if _, err := NewLoader(path, WithEnv(noEnv)).Load(); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("Load() error = %v, want ErrInvalidParameter", err)
	}

	path = writeFile(t, "stormline.ini", "max_fps=3")
	if _, err := NewLoader(path, WithEnv(noEnv)).Load(); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("unsupported format error = %v, want ErrInvalidParameter", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "stormline.toml", "[render]\nmax_fps = 30\n")

	env := envMap(map[string]string{
		"STORMLINE_RENDER_MAX_FPS":                      "120",
		"STORMLINE_COMPOSITION_INTELLIGENT_POSITIONING": "off",
		"STORMLINE_CONTINUATION_PROMPT":                 "",
		"STORMLINE_LOG_LEVEL":                           "warn",
	})
	cfg, err := NewLoader(path, WithEnv(env)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.MaxFPS != 120 {
		t.Errorf("MaxFPS = %d, want 120", cfg.Render.MaxFPS)
	}
	if cfg.Composition.IntelligentPositioning {
		t.Error("IntelligentPositioning should be disabled")
	}
	if cfg.Continuation.Prompt != "" {
		t.Errorf("empty env value should be applied, got %q", cfg.Continuation.Prompt)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestEnvParseErrors(t *testing.T) {
	for name, val := range map[string]string{
		"STORMLINE_RENDER_MAX_FPS":              "fast",
		"STORMLINE_COMPOSITION_WIDE_CHAR_WIDTH": "maybe",
	} {
		l := NewLoader("", WithEnv(envMap(map[string]string{name: val})))
		if _, err := l.Load(); !errors.Is(err, core.ErrInvalidParameter) {
			t.Errorf("%s=%q: error = %v, want ErrInvalidParameter", name, val, err)
		}
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	c := cfg.Clone()
	c.Render.MaxFPS = 1
	if cfg.Render.MaxFPS == 1 {
		t.Error("Clone shares state")
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeFile(t, "stormline.toml", "[render]\nmax_fps = 30\n")

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	w, err := NewWatcher(NewLoader(path, WithEnv(noEnv)),
		func(c *Config) { changes <- c },
		WithDebounce(10*time.Millisecond),
		WithErrorHandler(func(err error) { errs <- err }),
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[render]\nmax_fps = 24\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-changes:
		if c.Render.MaxFPS != 24 {
			t.Errorf("reloaded MaxFPS = %d, want 24", c.Render.MaxFPS)
		}
	case err := <-errs:
		t.Fatalf("reload error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	if err := os.WriteFile(path, []byte("[render]\nmax_fps = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, core.ErrInvalidParameter) {
			t.Errorf("reload error = %v, want ErrInvalidParameter", err)
		}
	case c := <-changes:
		t.Fatalf("invalid config delivered: %+v", c.Render)
	case <-time.After(5 * time.Second):
		t.Fatal("no error for invalid file")
	}

	if w.Reloads() < 1 || w.Failures() < 1 {
		t.Errorf("Reloads() = %d Failures() = %d", w.Reloads(), w.Failures())
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "stormline.toml", "")
	changes := make(chan *Config, 1)
	w, err := NewWatcher(NewLoader(path, WithEnv(noEnv)),
		func(c *Config) { changes <- c },
		WithDebounce(5*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	other := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changes:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherClose(t *testing.T) {
	path := writeFile(t, "stormline.toml", "")
	w, err := NewWatcher(NewLoader(path), func(*Config) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("second Close() error = %v, want ErrWatcherClosed", err)
	}
}

func TestNewWatcherValidation(t *testing.T) {
	if _, err := NewWatcher(NewLoader(""), func(*Config) {}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("empty path error = %v", err)
	}
	if _, err := NewWatcher(NewLoader("x.toml"), nil); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("nil callback error = %v", err)
	}
}
