package renderer

import (
	"github.com/dshills/stormline/internal/renderer/cache"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/cursor"
	"github.com/dshills/stormline/internal/renderer/dirty"
	"github.com/dshills/stormline/internal/renderer/metrics"
)

// bootstrapper creates the controller's components with cleanup on failure.
type bootstrapper struct {
	c         *Controller
	opts      Options
	initOrder []string
}

func newBootstrapper(c *Controller, opts Options) *bootstrapper {
	return &bootstrapper{
		c:         c,
		opts:      opts,
		initOrder: make([]string, 0, 7),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it tears down already-initialized components.
func (b *bootstrapper) bootstrap() error {
	var err error

	// 1. Configuration block
	if err = b.initConfig(); err != nil {
		b.cleanup()
		return err
	}

	// 2. Metrics
	if err = b.initMetrics(); err != nil {
		b.cleanup()
		return err
	}

	// 3. Dirty tracker
	if err = b.initDirty(); err != nil {
		b.cleanup()
		return err
	}

	// 4. Render cache
	if err = b.initCache(); err != nil {
		b.cleanup()
		return err
	}

	// 5. Frame scheduler
	if err = b.initScheduler(); err != nil {
		b.cleanup()
		return err
	}

	// 6. Cursor renderer
	if err = b.initCursor(); err != nil {
		b.cleanup()
		return err
	}

	// 7. Buffer renderer
	if err = b.initBuffer(); err != nil {
		b.cleanup()
		return err
	}

	return nil
}

func (b *bootstrapper) initConfig() error {
	if err := b.opts.validate(); err != nil {
		return err
	}
	b.c.opts = b.opts
	b.initOrder = append(b.initOrder, "config")
	return nil
}

func (b *bootstrapper) initMetrics() error {
	b.c.metrics = metrics.New()
	b.initOrder = append(b.initOrder, "metrics")
	return nil
}

func (b *bootstrapper) initDirty() error {
	if b.opts.Tracker != nil {
		b.c.dirty = b.opts.Tracker
	} else {
		b.c.dirty = dirty.NewTracker(b.opts.MaxDirtyRegions)
	}
	b.initOrder = append(b.initOrder, "dirty")
	return nil
}

func (b *bootstrapper) initCache() error {
	rc, err := cache.New(cache.Config{
		MaxEntries: b.opts.CacheEntries,
		TTL:        b.opts.CacheTTL,
		Now:        b.opts.Now,
	})
	if err != nil {
		return err
	}
	b.c.cache = rc
	b.initOrder = append(b.initOrder, "cache")
	return nil
}

func (b *bootstrapper) initScheduler() error {
	b.c.scheduler = NewFrameScheduler(b.opts.MaxFPS, b.opts.Now)
	b.initOrder = append(b.initOrder, "scheduler")
	return nil
}

func (b *bootstrapper) initCursor() error {
	scratch, err := b.c.pool.Get(cursor.MinBufferSize)
	if err != nil {
		return core.Errorf("renderer", err, "cursor renderer")
	}
	b.c.cursorScratch = scratch
	b.c.cursor = cursor.New(cursor.Config{Style: b.opts.CursorStyle})
	b.initOrder = append(b.initOrder, "cursor")
	return nil
}

func (b *bootstrapper) initBuffer() error {
	br, err := newBufferRenderer(b.c.pool, b.opts.OutputCapacity, b.opts.CRLF)
	if err != nil {
		return core.Errorf("renderer", err, "buffer renderer")
	}
	b.c.buffer = br
	b.initOrder = append(b.initOrder, "buffer")
	return nil
}

// cleanup tears down in reverse initialization order.
func (b *bootstrapper) cleanup() {
	teardown(b.c, b.initOrder)
	b.initOrder = b.initOrder[:0]
}

// teardown releases components in reverse of order and returns the first
// error encountered.
func teardown(c *Controller, order []string) error {
	var first error
	for i := len(order) - 1; i >= 0; i-- {
		if err := teardownComponent(c, order[i]); err != nil && first == nil {
			first = err
		}
		if c.opts.observe != nil {
			c.opts.observe(order[i])
		}
	}
	return first
}

func teardownComponent(c *Controller, component string) error {
	switch component {
	case "buffer":
		if c.buffer != nil {
			c.buffer.close()
			c.buffer = nil
		}
	case "cursor":
		if c.cursorScratch != nil {
			c.pool.Put(c.cursorScratch)
			c.cursorScratch = nil
		}
		if c.cursor != nil {
			err := c.cursor.Close()
			c.cursor = nil
			return err
		}
	case "scheduler":
		c.scheduler = nil
	case "cache":
		if c.cache != nil {
			err := c.cache.Close()
			c.cache = nil
			return err
		}
	case "dirty":
		if c.dirty != nil {
			err := c.dirty.Clear()
			c.dirty = nil
			return err
		}
	case "metrics":
		c.metrics = nil
	case "config":
		c.opts = Options{observe: c.opts.observe}
	}
	return nil
}
