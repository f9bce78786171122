package app

import (
	"io"
	"time"

	"github.com/dshills/stormline/internal/compose"
	"github.com/dshills/stormline/internal/compose/continuation"
	"github.com/dshills/stormline/internal/config"
	"github.com/dshills/stormline/internal/logging"
	"github.com/dshills/stormline/internal/renderer"
	"github.com/dshills/stormline/internal/renderer/cursor"
	"github.com/dshills/stormline/internal/renderer/layout"
)

func measurerFor(wide bool) layout.Measurer {
	if wide {
		return layout.NewEastAsianWidth()
	}
	return layout.SingleWidth{}
}

func engineConfig(cfg *config.Config, width int, log *logging.Logger, now func() time.Time) (compose.Config, error) {
	strategy, err := compose.ParseStrategy(cfg.Composition.Strategy)
	if err != nil {
		return compose.Config{}, err
	}
	ec := compose.DefaultConfig()
	ec.Strategy = strategy
	ec.IntelligentPositioning = cfg.Composition.IntelligentPositioning
	ec.PerformanceMonitoring = cfg.Composition.PerformanceMonitoring
	ec.CacheMaxAge = time.Duration(cfg.Composition.CacheMaxAgeMS) * time.Millisecond
	ec.CacheSlots = cfg.Composition.CacheSlots
	ec.TerminalWidth = width
	ec.Measure = measurerFor(cfg.Composition.WideCharWidth)
	ec.Logger = log
	ec.Now = now
	return ec, nil
}

func renderOptions(cfg *config.Config, log *logging.Logger, now func() time.Time) renderer.Options {
	opts := renderer.DefaultOptions()
	opts.OutputCapacity = cfg.Render.OutputCapacity
	opts.ContextWindow = cfg.Render.ContextWindow
	opts.CacheEntries = cfg.Render.CacheEntries
	opts.CacheTTL = time.Duration(cfg.Render.CacheTTLMS) * time.Millisecond
	opts.MaxDirtyRegions = cfg.Render.MaxDirtyRegions
	opts.MaxFPS = cfg.Render.MaxFPS
	opts.CRLF = true
	opts.CursorStyle = cursor.StyleFromString(cfg.Render.CursorStyle)
	opts.Logger = log
	opts.Now = now
	return opts
}

// newProvider builds the continuation prompt provider. The returned closer
// is nil unless the provider holds resources.
func newProvider(cfg config.ContinuationConfig) (continuation.Provider, io.Closer, error) {
	switch cfg.Mode {
	case config.ContinuationStatic:
		return continuation.NewStatic(cfg.Prompt), nil, nil
	case config.ContinuationLua:
		p, err := continuation.NewLuaFile(cfg.Script)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		c := continuation.NewContext()
		if cfg.Prompt != "" {
			c.Fallback = cfg.Prompt
		}
		return c, nil, nil
	}
}
