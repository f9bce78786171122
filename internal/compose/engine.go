// Package compose merges a rendered prompt and a rendered command into a
// single frame, choosing a layout from the prompt's shape.
//
// Frames are cached by a fingerprint of both inputs. Changing any setting
// (theme, terminal width, strategy, continuation layer, positioning,
// monitoring or cache age) drops every cached frame.
package compose

import (
	"strings"
	"sync"
	"time"

	"github.com/dshills/stormline/internal/compose/continuation"
	"github.com/dshills/stormline/internal/logging"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/layout"
)

// DefaultMaxLayerBytes bounds the text requested from each layer.
const DefaultMaxLayerBytes = 64 * 1024

// VirtualScreen lays out multi-line commands with per-line prefixes.
// *vscreen.Screen is the default implementation.
type VirtualScreen interface {
	SetContent(lines []string)
	SetLinePrefix(line int, prefix string) error
	RenderMultilineWithPrefixes(start, count int) ([]byte, error)
}

// Config configures the engine.
type Config struct {
	// Strategy selects the layout. Adaptive follows prompt analysis.
	Strategy Strategy

	// IntelligentPositioning moves the command below a prompt whose last
	// line fills more than two thirds of the terminal.
	IntelligentPositioning bool

	// PerformanceMonitoring records composition timings in Stats.
	PerformanceMonitoring bool

	// CacheMaxAge is the age after which cached frames are stale.
	// Zero disables expiry.
	CacheMaxAge time.Duration

	// CacheSlots is the number of cached frames.
	CacheSlots int

	// TerminalWidth is the width in columns. Zero disables wrapping.
	TerminalWidth int

	// MaxLayerBytes bounds the text requested from each layer.
	MaxLayerBytes int

	// Measure measures non-ASCII codepoints. Defaults to layout.SingleWidth.
	Measure layout.Measurer

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger

	// Now is the clock used for cache ages. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:               Adaptive,
		IntelligentPositioning: true,
		CacheMaxAge:            DefaultCacheMaxAge,
		CacheSlots:             DefaultCacheSlots,
		TerminalWidth:          80,
		MaxLayerBytes:          DefaultMaxLayerBytes,
	}
}

func (c *Config) validate() error {
	if c.CacheSlots < 1 {
		return core.Errorf("compose", core.ErrInvalidParameter, "cache slots %d", c.CacheSlots)
	}
	if c.CacheMaxAge < 0 {
		return core.Errorf("compose", core.ErrInvalidParameter, "cache max age %s", c.CacheMaxAge)
	}
	if c.TerminalWidth < 0 {
		return core.Errorf("compose", core.ErrInvalidParameter, "terminal width %d", c.TerminalWidth)
	}
	if c.Strategy > AsciiArt {
		return core.Errorf("compose", core.ErrInvalidParameter, "strategy %s", c.Strategy)
	}
	if c.MaxLayerBytes <= 0 {
		c.MaxLayerBytes = DefaultMaxLayerBytes
	}
	if c.Measure == nil {
		c.Measure = layout.SingleWidth{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Stats holds engine counters.
type Stats struct {
	Compositions          uint64
	CacheHits             uint64
	CacheMisses           uint64
	AnalysisRuns          uint64
	MultilineCompositions uint64
	ContinuationFallbacks uint64
	Invalidations         uint64

	// Timings are recorded only with performance monitoring enabled.
	TimedCompositions uint64
	TotalTime         time.Duration
	LastTime          time.Duration
	MaxTime           time.Duration
}

// AvgTime returns the mean composition time.
func (s Stats) AvgTime() time.Duration {
	if s.TimedCompositions == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.TimedCompositions)
}

// Engine composes frames. It is owned by the editor loop; settings may be
// changed from other goroutines, such as a resize handler.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	cache *frameCache
	theme string
	log   *logging.Logger

	provider continuation.Provider
	screen   VirtualScreen

	promptLayer  Layer
	commandLayer Layer

	// analyze is swapped in tests to count analysis runs.
	analyze func(prompt string, m layout.Measurer) PromptAnalysis

	stats Stats
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		cache:   newFrameCache(cfg.CacheSlots, cfg.CacheMaxAge, cfg.Now),
		log:     cfg.Logger.WithComponent("compose"),
		analyze: AnalyzePrompt,
	}, nil
}

// Compose merges prompt and command into a frame. A live cached frame for
// the same pair is returned without recomputation.
func (e *Engine) Compose(prompt, command string) (*Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composeLocked(prompt, command)
}

func (e *Engine) composeLocked(prompt, command string) (*Frame, error) {
	var start time.Time
	if e.cfg.PerformanceMonitoring {
		start = time.Now()
	}

	key := newCacheKey(prompt, command)
	if cached, ok := e.cache.lookup(key); ok {
		e.stats.Compositions++
		e.stats.CacheHits++
		e.recordTime(start)
		f := cached.clone()
		f.Cached = true
		return f, nil
	}

	var (
		frame Frame
		err   error
	)
	if strings.Contains(command, "\n") && e.provider != nil && e.screen != nil {
		frame, err = e.composeMultiline(prompt, command)
	} else {
		frame, err = e.composeSingle(prompt, command)
	}
	if err != nil {
		return nil, err
	}

	e.cache.store(key, frame)
	e.stats.Compositions++
	e.stats.CacheMisses++
	e.recordTime(start)
	return frame.clone(), nil
}

// composeSingle runs analysis, positioning and assembly.
func (e *Engine) composeSingle(prompt, command string) (Frame, error) {
	a := e.analyze(prompt, e.cfg.Measure)
	e.stats.AnalysisRuns++

	commandWidth := layout.VisibleWidth(layout.LastLine(command), e.cfg.Measure)
	p := computePositioning(a, commandWidth, e.cfg.TerminalWidth, e.cfg.IntelligentPositioning)

	strategy := e.cfg.Strategy.resolve(a)
	bytes, p := assemble(strategy, prompt, command, a, p, commandWidth, e.cfg.TerminalWidth)

	if p.SameLine && p.StartLine != a.LineCount-1 {
		return Frame{}, core.Errorf("compose", core.ErrCompositionFailed,
			"same-line command starts on line %d of %d", p.StartLine, a.LineCount)
	}

	return Frame{
		Bytes:       bytes,
		Analysis:    a,
		Positioning: p,
		Strategy:    strategy,
	}, nil
}

func (e *Engine) recordTime(start time.Time) {
	if !e.cfg.PerformanceMonitoring || start.IsZero() {
		return
	}
	d := time.Since(start)
	e.stats.TimedCompositions++
	e.stats.TotalTime += d
	e.stats.LastTime = d
	e.stats.MaxTime = max(e.stats.MaxTime, d)
}

// SetLayers sets the layers read by ComposeWithCursor.
func (e *Engine) SetLayers(prompt, command Layer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promptLayer = prompt
	e.commandLayer = command
}

// content reads both layers.
func (e *Engine) content() (prompt, command string, err error) {
	if e.promptLayer == nil || e.commandLayer == nil {
		return "", "", core.Errorf("compose", core.ErrNotInitialized, "layers not set")
	}
	prompt, err = e.promptLayer.RenderedContent(e.cfg.MaxLayerBytes)
	if err != nil {
		return "", "", core.Errorf("compose", core.ErrLayerNotReady, "prompt layer: %v", err)
	}
	command, err = e.commandLayer.RenderedContent(e.cfg.MaxLayerBytes)
	if err != nil {
		return "", "", core.Errorf("compose", core.ErrLayerNotReady, "command layer: %v", err)
	}
	return prompt, command, nil
}

// Invalidate drops every cached frame.
func (e *Engine) Invalidate(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked(reason)
}

func (e *Engine) invalidateLocked(reason string) {
	e.cache.invalidate()
	e.stats.Invalidations++
	e.log.Debug("composition cache invalidated: %s", reason)
}

// SetTheme records a theme change.
func (e *Engine) SetTheme(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.theme = name
	e.invalidateLocked("theme")
}

// Theme returns the current theme name.
func (e *Engine) Theme() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.theme
}

// SetTerminalWidth records a terminal resize.
func (e *Engine) SetTerminalWidth(width int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width < 0 {
		width = 0
	}
	e.cfg.TerminalWidth = width
	e.invalidateLocked("resize")
}

// SetStrategy selects the layout strategy.
func (e *Engine) SetStrategy(s Strategy) error {
	if s > AsciiArt {
		return core.Errorf("compose", core.ErrInvalidParameter, "strategy %s", s)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Strategy = s
	e.invalidateLocked("strategy")
	return nil
}

// SetContinuationProvider sets the provider for continuation prompts.
// Nil disables the multi-line path.
func (e *Engine) SetContinuationProvider(p continuation.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provider = p
	e.invalidateLocked("continuation provider")
}

// SetScreen sets the virtual screen for multi-line commands.
// Nil disables the multi-line path.
func (e *Engine) SetScreen(s VirtualScreen) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.screen = s
	e.invalidateLocked("virtual screen")
}

// SetIntelligentPositioning enables or disables intelligent positioning.
func (e *Engine) SetIntelligentPositioning(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.IntelligentPositioning = enabled
	e.invalidateLocked("intelligent positioning")
}

// SetPerformanceMonitoring enables or disables composition timing.
func (e *Engine) SetPerformanceMonitoring(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.PerformanceMonitoring = enabled
	e.invalidateLocked("performance monitoring")
}

// SetCacheMaxAge sets the cache max age in milliseconds. Zero disables
// expiry.
func (e *Engine) SetCacheMaxAge(ms int) error {
	if ms < 0 {
		return core.Errorf("compose", core.ErrInvalidParameter, "cache max age %dms", ms)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.CacheMaxAge = time.Duration(ms) * time.Millisecond
	e.cache.setMaxAge(e.cfg.CacheMaxAge)
	e.invalidateLocked("cache max age")
	return nil
}

// SetMeasurer replaces the width measurer.
func (e *Engine) SetMeasurer(m layout.Measurer) {
	if m == nil {
		m = layout.SingleWidth{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Measure = m
	e.invalidateLocked("measurer")
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CachedFrames returns the number of live cache slots.
func (e *Engine) CachedFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.len()
}
