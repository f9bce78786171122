package renderer

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/stormline/internal/logging"
	"github.com/dshills/stormline/internal/renderer/cache"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/cursor"
	"github.com/dshills/stormline/internal/renderer/dirty"
	"github.com/dshills/stormline/internal/renderer/metrics"
)

// Display is the bridge to the host display.
type Display interface {
	// Size returns the display size in columns and rows.
	Size() (width, height int)
}

// DirtyTracker records which byte offsets changed since the last render.
// *dirty.Tracker is the default implementation.
type DirtyTracker interface {
	Mark(offset int)
	MarkRange(start, end int)
	MarkFull()
	NeedsFullRedraw() bool
	RegionCount() int
	Offsets() []int
	Clear() error
}

// Options configures the controller.
type Options struct {
	// OutputCapacity is the largest render output in bytes.
	OutputCapacity int

	// ContextWindow is the number of bytes copied on each side of a dirty
	// offset during a partial render.
	ContextWindow int

	// CacheEntries and CacheTTL configure the full-render cache.
	CacheEntries int
	CacheTTL     time.Duration

	// MaxDirtyRegions is the number of dirty offsets tracked before a full
	// redraw is forced.
	MaxDirtyRegions int

	// MaxFPS limits how often frames are presented.
	MaxFPS int

	// CRLF translates bare line feeds to CR LF, for raw-mode terminals.
	CRLF bool

	// CursorStyle is the cursor shape requested from the terminal.
	CursorStyle cursor.Style

	// Tracker replaces the default dirty tracker.
	Tracker DirtyTracker

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger

	// Now is the clock used by the cache and scheduler. Defaults to time.Now.
	Now func() time.Time

	// observe is called with each component name as it is torn down.
	observe func(component string)
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		OutputCapacity:  64 * 1024,
		ContextWindow:   64,
		CacheEntries:    cache.DefaultMaxEntries,
		CacheTTL:        cache.DefaultTTL,
		MaxDirtyRegions: dirty.DefaultMaxRegions,
		MaxFPS:          60,
	}
}

func (o Options) validate() error {
	if o.OutputCapacity <= 0 {
		return core.Errorf("renderer", core.ErrInvalidParameter, "output capacity %d", o.OutputCapacity)
	}
	if o.ContextWindow < 0 {
		return core.Errorf("renderer", core.ErrInvalidParameter, "context window %d", o.ContextWindow)
	}
	if o.MaxFPS < 0 {
		return core.Errorf("renderer", core.ErrInvalidParameter, "max fps %d", o.MaxFPS)
	}
	return nil
}

// RenderOutput is the result of one render. The caller owns it and must
// call Release when done.
type RenderOutput struct {
	// Content is the rendered bytes.
	Content []byte

	// Cursor is the cursor escape sequence for the render's cursor.
	Cursor []byte

	// Kind reports whether the render was full or partial.
	Kind metrics.Kind

	// Regions are the buffer ranges copied by a partial render.
	Regions []dirty.Region

	// Duration is the time spent copying.
	Duration time.Duration

	buf  []byte
	pool Pool
}

// Len returns the content length.
func (o *RenderOutput) Len() int {
	return len(o.Content)
}

// Partial reports whether the output came from a partial render.
func (o *RenderOutput) Partial() bool {
	return o.Kind == metrics.Partial
}

// Release returns the output buffer to its pool. The output must not be
// used afterwards.
func (o *RenderOutput) Release() {
	if o == nil || o.buf == nil {
		return
	}
	o.pool.Put(o.buf)
	o.buf = nil
	o.Content = nil
}

// Controller decides between full and partial redraws and produces the
// bytes and cursor codes for each frame.
type Controller struct {
	mu sync.Mutex

	opts    Options
	pool    Pool
	display Display
	log     *logging.Logger

	metrics       *metrics.Metrics
	dirty         DirtyTracker
	cache         *cache.Cache
	scheduler     *FrameScheduler
	cursor        *cursor.Renderer
	cursorScratch []byte
	buffer        *bufferRenderer

	initOrder []string
	closed    bool
}

// New creates a controller. If any component fails to initialize, the
// components created before it are torn down and no controller is returned.
func New(pool Pool, display Display, opts Options) (*Controller, error) {
	if pool == nil {
		return nil, core.Errorf("renderer", core.ErrInvalidParameter, "nil pool")
	}
	if display == nil {
		return nil, core.Errorf("renderer", core.ErrInvalidParameter, "nil display")
	}

	c := &Controller{
		pool:    pool,
		display: display,
		log:     opts.Logger.WithComponent("renderer"),
	}

	b := newBootstrapper(c, opts)
	if err := b.bootstrap(); err != nil {
		return nil, err
	}
	c.initOrder = b.initOrder
	return c, nil
}

// Close tears down every component in reverse creation order.
// Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	err := teardown(c, c.initOrder)
	c.initOrder = nil
	return err
}

// Render renders buffer and the escape sequence for cur.
//
// A full render happens when the tracker needs a full redraw or has no
// regions. Otherwise the context windows around the dirty offsets are
// copied; if they do not fit the output capacity the render falls back to
// full. The dirty tracker is cleared after every attempt, successful or not.
func (c *Controller) Render(buffer []byte, cur cursor.Cursor) (*RenderOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.Errorf("renderer", core.ErrNotInitialized, "render")
	}
	defer c.clearDirty()

	n, err := c.cursor.RenderPosition(cur, c.cursorScratch)
	if err != nil {
		return nil, err
	}
	seq := make([]byte, n)
	copy(seq, c.cursorScratch[:n])

	out, err := c.renderLocked(buffer)
	if err != nil {
		return nil, err
	}
	out.Cursor = seq
	return out, nil
}

func (c *Controller) renderLocked(buffer []byte) (*RenderOutput, error) {
	if !c.dirty.NeedsFullRedraw() && c.dirty.RegionCount() > 0 {
		regions := c.windows(len(buffer), c.dirty.Offsets())
		if len(regions) > 0 {
			timer := metrics.StartTimer()
			n, ok := c.buffer.partial(buffer, regions)
			elapsed := timer.Elapsed()
			if ok {
				out, err := c.emit(n, metrics.Partial, elapsed)
				if err != nil {
					return nil, err
				}
				out.Regions = regions
				c.metrics.RecordRender(metrics.Partial, elapsed)
				return out, nil
			}

			out, err := c.renderFull(buffer)
			if err != nil {
				return nil, err
			}
			c.metrics.RecordFallback()
			c.log.Debug("partial render of %d regions exceeds %d bytes, rendered full", len(regions), c.buffer.capacity())
			return out, nil
		}
	}
	return c.renderFull(buffer)
}

func (c *Controller) renderFull(buffer []byte) (*RenderOutput, error) {
	key := fingerprint(buffer, c.opts.CRLF)

	timer := metrics.StartTimer()
	if data, ok := c.cache.Lookup(key); ok && len(data) <= c.buffer.capacity() {
		n := copy(c.buffer.staging, data)
		elapsed := timer.Elapsed()
		out, err := c.emit(n, metrics.Full, elapsed)
		if err != nil {
			return nil, err
		}
		c.metrics.RecordCacheHit()
		c.metrics.RecordRender(metrics.Full, elapsed)
		return out, nil
	}

	n, err := c.buffer.full(buffer)
	elapsed := timer.Elapsed()
	if err != nil {
		return nil, err
	}
	out, err := c.emit(n, metrics.Full, elapsed)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordCacheMiss()
	c.metrics.RecordRender(metrics.Full, elapsed)
	if err := c.cache.Store(key, c.buffer.bytes(n)); err != nil {
		c.log.Warn("render cache store: %v", err)
	}
	return out, nil
}

// emit moves n staged bytes into a caller-owned output buffer.
func (c *Controller) emit(n int, kind metrics.Kind, elapsed time.Duration) (*RenderOutput, error) {
	buf, err := c.pool.Get(max(n, 1))
	if err != nil {
		return nil, core.Errorf("renderer", err, "output buffer")
	}
	copy(buf, c.buffer.bytes(n))
	return &RenderOutput{
		Content:  buf[:n],
		Kind:     kind,
		Duration: elapsed,
		buf:      buf,
		pool:     c.pool,
	}, nil
}

// windows returns the merged, ascending context windows around offsets.
func (c *Controller) windows(size int, offsets []int) []dirty.Region {
	regions := make([]dirty.Region, 0, len(offsets))
	for _, off := range offsets {
		w := dirty.Window(off, c.opts.ContextWindow, size)
		if !w.IsEmpty() {
			regions = append(regions, w)
		}
	}
	return dirty.Coalesce(regions)
}

func (c *Controller) clearDirty() {
	if c.dirty == nil {
		return
	}
	if err := c.dirty.Clear(); err != nil {
		c.metrics.RecordClearError()
		c.log.Warn("dirty tracker clear failed: %v", err)
	}
}

// fingerprint returns the render cache key for buffer.
func fingerprint(buffer []byte, crlf bool) string {
	key := strconv.FormatUint(xxhash.Sum64(buffer), 16) + ":" + strconv.Itoa(len(buffer))
	if crlf {
		key += ":crlf"
	}
	return key
}

// RenderCursorPosition writes the escape sequence for cur into dst.
// dst must hold at least cursor.MinBufferSize bytes.
func (c *Controller) RenderCursorPosition(cur cursor.Cursor, dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, core.Errorf("renderer", core.ErrNotInitialized, "cursor position")
	}
	return c.cursor.RenderPosition(cur, dst)
}

// CursorShape returns the escape sequence selecting the configured cursor
// shape, or an empty string.
func (c *Controller) CursorShape() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ""
	}
	return c.cursor.ShapeSequence()
}

// MarkDirty marks a byte offset of the buffer as changed.
func (c *Controller) MarkDirty(offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.dirty.Mark(offset)
	}
}

// MarkRange marks the byte range [start, end) as changed.
func (c *Controller) MarkRange(start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.dirty.MarkRange(start, end)
	}
}

// MarkFullRedraw forces the next render to be full.
func (c *Controller) MarkFullRedraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.dirty.MarkFull()
	}
}

// Resize handles display resize events.
func (c *Controller) Resize(width, height int) {
	c.log.Debug("resize to %dx%d", width, height)
	c.MarkFullRedraw()
}

// DisplaySize returns the display size.
func (c *Controller) DisplaySize() (width, height int) {
	return c.display.Size()
}

// Scheduler returns the frame scheduler.
func (c *Controller) Scheduler() *FrameScheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

// SetMaxFPS changes the frame rate limit.
func (c *Controller) SetMaxFPS(fps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fps < 0 {
		return
	}
	c.opts.MaxFPS = fps
	c.scheduler.SetMaxFPS(fps)
}

// Metrics returns a snapshot of render metrics.
func (c *Controller) Metrics() metrics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return metrics.Snapshot{}
	}
	return c.metrics.Snapshot()
}

// ResetMetrics zeroes render metrics.
func (c *Controller) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.metrics.Reset()
	}
}

// CacheStats returns render cache statistics.
func (c *Controller) CacheStats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// InvalidateCache drops every cached render.
func (c *Controller) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.cache.InvalidateAll()
	}
}

// Options returns the current options.
func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}
