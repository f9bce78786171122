// Package app runs the interactive line editor. It wires the composition
// engine, the render controller and the terminal together and repaints the
// prompt and command in place after every edit.
package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/stormline/internal/compose"
	"github.com/dshills/stormline/internal/config"
	"github.com/dshills/stormline/internal/logging"
	"github.com/dshills/stormline/internal/renderer"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/cursor"
	"github.com/dshills/stormline/internal/renderer/layout"
	"github.com/dshills/stormline/internal/renderer/metrics"
	"github.com/dshills/stormline/internal/terminal"
	"github.com/dshills/stormline/internal/vscreen"
)

// Options configures the application.
type Options struct {
	// Config is the initial configuration. Nil uses config.Default().
	Config *config.Config

	// Output receives the terminal bytes.
	Output io.Writer

	// Display reports the terminal size.
	Display renderer.Display

	// Logger receives diagnostics. Nil discards them.
	Logger *logging.Logger

	// Prompt is the session information shown in the primary prompt.
	Prompt PromptInfo

	// OnAccept is called with every accepted command, outside the
	// application lock.
	OnAccept func(command string)

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Application is the line editor.
type Application struct {
	mu sync.Mutex

	cfg     *config.Config
	opts    Options
	session string
	log     *logging.Logger

	engine     *compose.Engine
	controller *renderer.Controller
	screen     *vscreen.Screen
	closer     io.Closer // continuation provider resources

	promptLayer  *compose.TextLayer
	commandLayer *compose.TextLayer
	theme        Theme
	measure      layout.Measurer

	line  LineBuffer
	paint painter

	// painted is set once the current frame origin holds a frame.
	painted bool
	// contentDirty is set when the frame content changed since the last
	// present; otherwise only the cursor moved.
	contentDirty bool
	// cmdStart is the frame offset where the command starts, or -1 when
	// command offsets do not map linearly onto the frame.
	cmdStart int
	end      layout.Position

	accepted atomic.Uint64
	running  atomic.Bool
	wake     chan struct{}
}

// New creates an application from options.
func New(opts Options) (*Application, error) {
	if opts.Output == nil {
		return nil, &InitError{Component: "output", Err: core.ErrInvalidParameter}
	}
	if opts.Display == nil {
		return nil, &InitError{Component: "display", Err: core.ErrInvalidParameter}
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	session := uuid.NewString()
	app := &Application{
		cfg:          opts.Config.Clone(),
		opts:         opts,
		session:      session,
		log:          opts.Logger.WithField("session", session),
		promptLayer:  compose.NewTextLayer(""),
		commandLayer: compose.NewTextLayer(""),
		contentDirty: true,
		cmdStart:     -1,
		wake:         make(chan struct{}, 1),
	}

	if err := app.bootstrap(); err != nil {
		_ = app.teardown()
		return nil, err
	}
	return app, nil
}

// bootstrap creates the components in dependency order.
func (app *Application) bootstrap() error {
	cfg := app.cfg
	width, _ := app.opts.Display.Size()

	theme, err := NewTheme(cfg.Theme)
	if err != nil {
		return &InitError{Component: "theme", Err: err}
	}
	app.theme = theme
	app.measure = measurerFor(cfg.Composition.WideCharWidth)

	ec, err := engineConfig(cfg, width, app.log, app.opts.Now)
	if err != nil {
		return &InitError{Component: "composition engine", Err: err}
	}
	if app.engine, err = compose.New(ec); err != nil {
		return &InitError{Component: "composition engine", Err: err}
	}
	app.engine.SetTheme(theme.Name)
	app.engine.SetLayers(app.promptLayer, app.commandLayer)

	app.screen = vscreen.New(app.measure)
	app.engine.SetScreen(app.screen)

	provider, closer, err := newProvider(cfg.Continuation)
	if err != nil {
		return &InitError{Component: "continuation", Err: err}
	}
	app.closer = closer
	app.engine.SetContinuationProvider(provider)

	app.controller, err = renderer.New(renderer.NewBytePool(), app.opts.Display, renderOptions(cfg, app.log, app.opts.Now))
	if err != nil {
		return &InitError{Component: "renderer", Err: err}
	}

	app.promptLayer.Set(theme.Prompt(app.opts.Prompt))
	app.log.Info("editor ready: strategy=%s continuation=%s width=%d",
		cfg.Composition.Strategy, cfg.Continuation.Mode, width)
	return nil
}

// Session returns the session identifier attached to log lines.
func (app *Application) Session() string {
	return app.session
}

// Command returns the command being edited.
func (app *Application) Command() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.line.String()
}

// Accepted returns the number of accepted commands.
func (app *Application) Accepted() uint64 {
	return app.accepted.Load()
}

// Run paints the prompt and processes events until the channel closes, the
// context is canceled or the user quits. Frames are rate limited by the
// controller's scheduler; a deferred frame is presented once it is due.
func (app *Application) Run(ctx context.Context, events <-chan terminal.Event) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	if err := app.Present(); err != nil {
		return err
	}

	sched := app.controller.Scheduler()
	var timer *time.Timer
	var due <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	request := func() error {
		wait := sched.Request()
		if wait <= 0 {
			return app.Present()
		}
		if due == nil {
			timer = time.NewTimer(wait)
			due = timer.C
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return app.leave()

		case <-due:
			due = nil
			if sched.Pending() {
				if err := app.Present(); err != nil {
					return err
				}
			}

		case <-app.wake:
			if err := request(); err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				return app.leave()
			}
			redraw, err := app.HandleEvent(ev)
			if errors.Is(err, ErrQuit) {
				return app.leave()
			}
			if err != nil {
				return err
			}
			if redraw {
				if err := request(); err != nil {
					return err
				}
			}
		}
	}
}

// HandleEvent applies one key event. It reports whether the frame needs a
// redraw. ErrQuit is returned for Ctrl-C and Ctrl-D.
func (app *Application) HandleEvent(ev terminal.Event) (bool, error) {
	app.mu.Lock()
	redraw, accepted, err := app.handleLocked(ev)
	app.mu.Unlock()

	if accepted != nil && app.opts.OnAccept != nil {
		app.opts.OnAccept(*accepted)
	}
	return redraw, err
}

func (app *Application) handleLocked(ev terminal.Event) (bool, *string, error) {
	switch ev.Key {
	case terminal.KeyRune:
		return app.edit(func() (int, bool) { return app.line.Insert(string(ev.Rune)), true }), nil, nil
	case terminal.KeyTab:
		return app.edit(func() (int, bool) { return app.line.Insert("\t"), true }), nil, nil
	case terminal.KeyBackspace:
		return app.edit(app.line.Backspace), nil, nil
	case terminal.KeyDelete:
		return app.edit(app.line.Delete), nil, nil
	case terminal.KeyCtrlW:
		return app.edit(app.line.DeleteWord), nil, nil
	case terminal.KeyCtrlK:
		return app.edit(app.line.KillToEnd), nil, nil
	case terminal.KeyCtrlU:
		return app.edit(app.line.KillToStart), nil, nil
	case terminal.KeyLeft:
		return app.line.Left(), nil, nil
	case terminal.KeyRight:
		return app.line.Right(), nil, nil
	case terminal.KeyHome, terminal.KeyCtrlA:
		return app.line.Home(), nil, nil
	case terminal.KeyEnd, terminal.KeyCtrlE:
		return app.line.End(), nil, nil
	case terminal.KeyCtrlL:
		app.clearScreenLocked()
		return true, nil, nil
	case terminal.KeyEnter:
		return app.acceptLocked()
	case terminal.KeyCtrlC, terminal.KeyCtrlD:
		return false, nil, ErrQuit
	default:
		return false, nil, nil
	}
}

// edit applies fn and marks the changed frame bytes dirty.
func (app *Application) edit(fn func() (int, bool)) bool {
	before := app.line.String()
	offset, changed := fn()
	if !changed {
		return false
	}
	app.markEdit(before, offset)
	return true
}

func (app *Application) markEdit(before string, offset int) {
	app.contentDirty = true
	if app.cmdStart < 0 || strings.Contains(before, "\n") || bytes.IndexByte(app.line.text, '\n') >= 0 {
		// Line breaks change the continuation prefixes.
		app.controller.MarkFullRedraw()
		return
	}
	app.controller.MarkDirty(app.cmdStart + offset)
}

func (app *Application) acceptLocked() (bool, *string, error) {
	if app.line.NeedsContinuation() {
		before := app.line.String()
		offset := app.line.Insert("\n")
		app.markEdit(before, offset)
		return true, nil, nil
	}

	if err := app.presentLocked(); err != nil {
		return false, nil, err
	}
	app.write(app.paint.finish(app.end))

	command := app.line.String()
	app.accepted.Add(1)
	app.log.Info("command accepted: %d bytes, %d lines", len(command), strings.Count(command, "\n")+1)

	app.line.Reset()
	app.resetFrameLocked()
	return true, &command, nil
}

func (app *Application) clearScreenLocked() {
	app.write([]byte("\x1b[H\x1b[2J"))
	app.paint.row = 0
	app.resetFrameLocked()
}

// resetFrameLocked starts a new frame origin at the terminal cursor.
func (app *Application) resetFrameLocked() {
	app.painted = false
	app.contentDirty = true
	app.controller.MarkFullRedraw()
}

// Present composes and writes the current frame now.
func (app *Application) Present() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.presentLocked()
}

func (app *Application) presentLocked() error {
	defer app.controller.Scheduler().Presented()

	command := app.line.String()
	app.commandLayer.Set(command)
	width, _ := app.opts.Display.Size()

	frame, cur, found, err := app.engine.ComposeWithCursor(app.line.Cursor(), width)
	if err != nil {
		app.log.Error("compose failed: %v", err)
		return err
	}
	if !found {
		return core.Errorf("app", core.ErrCompositionFailed, "cursor offset %d outside command of %d bytes", app.line.Cursor(), len(command))
	}
	app.end, _ = app.engine.Locate(frame, command, len(command), width)

	if frame.LinePrefixes == nil {
		app.cmdStart = frame.Len() - len(command)
	} else {
		app.cmdStart = -1
	}

	if app.painted && !app.contentDirty {
		app.write(app.paint.cursorTo(cur))
		return nil
	}

	out, err := app.controller.Render(frame.Bytes, cursor.Cursor{Hidden: true})
	if err != nil {
		app.log.Error("render failed: %v", err)
		return err
	}
	defer out.Release()

	var data []byte
	switch {
	case !app.painted:
		data = append([]byte(app.controller.CursorShape()), app.paint.full(out.Cursor, app.content(out, frame), app.end, cur)...)
	case out.Partial() && len(out.Regions) > 0:
		row, start := rowOf(frame.Bytes, out.Regions[0].Start, width, app.measure)
		data = app.paint.tail(out.Cursor, crlf(frame.Bytes[start:]), row, app.end, cur)
	default:
		data = app.paint.full(out.Cursor, app.content(out, frame), app.end, cur)
	}
	app.write(data)
	app.painted = true
	app.contentDirty = false

	app.log.Debug("frame presented: kind=%s bytes=%d cached=%t", out.Kind, len(data), frame.Cached)
	return nil
}

// content returns the full frame bytes with CR LF line endings.
func (app *Application) content(out *renderer.RenderOutput, frame *compose.Frame) []byte {
	if out.Partial() {
		return crlf(frame.Bytes)
	}
	return out.Content
}

func (app *Application) write(data []byte) {
	if len(data) == 0 {
		return
	}
	if _, err := app.opts.Output.Write(data); err != nil {
		app.log.Warn("terminal write failed: %v", err)
	}
}

// rowOf returns the frame row where the frame line holding offset starts,
// and that line's byte offset.
func rowOf(frame []byte, offset, width int, m layout.Measurer) (row, start int) {
	for {
		nl := bytes.IndexByte(frame[start:], '\n')
		if nl < 0 || start+nl >= offset {
			return row, start
		}
		row += rowsFor(layout.VisibleWidth(string(frame[start:start+nl]), m), width)
		start += nl + 1
	}
}

func rowsFor(cols, width int) int {
	if width <= 0 || cols <= width {
		return 1
	}
	return (cols + width - 1) / width
}

// Resize updates the terminal width and schedules a full redraw.
func (app *Application) Resize(width, height int) {
	app.mu.Lock()
	app.engine.SetTerminalWidth(width)
	app.controller.Resize(width, height)
	app.contentDirty = true
	app.mu.Unlock()

	app.log.Debug("terminal resized to %dx%d", width, height)
	app.notify()
}

// ApplyConfig applies a reloaded configuration. Settings that cannot change
// at runtime, such as buffer capacities, are kept until restart.
func (app *Application) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	theme, err := NewTheme(cfg.Theme)
	if err != nil {
		return err
	}
	strategy, err := compose.ParseStrategy(cfg.Composition.Strategy)
	if err != nil {
		return err
	}

	app.mu.Lock()
	defer func() {
		app.mu.Unlock()
		app.notify()
	}()

	old := app.cfg
	if old.Continuation != cfg.Continuation {
		provider, closer, err := newProvider(cfg.Continuation)
		if err != nil {
			return err
		}
		if app.closer != nil {
			if err := app.closer.Close(); err != nil {
				app.log.Warn("closing continuation provider: %v", err)
			}
		}
		app.closer = closer
		app.engine.SetContinuationProvider(provider)
	}

	if err := app.engine.SetStrategy(strategy); err != nil {
		return err
	}
	app.engine.SetIntelligentPositioning(cfg.Composition.IntelligentPositioning)
	app.engine.SetPerformanceMonitoring(cfg.Composition.PerformanceMonitoring)
	if err := app.engine.SetCacheMaxAge(cfg.Composition.CacheMaxAgeMS); err != nil {
		return err
	}
	if old.Composition.WideCharWidth != cfg.Composition.WideCharWidth {
		app.measure = measurerFor(cfg.Composition.WideCharWidth)
		app.engine.SetMeasurer(app.measure)
		app.screen = vscreen.New(app.measure)
		app.engine.SetScreen(app.screen)
	}

	app.theme = theme
	app.engine.SetTheme(theme.Name)
	app.promptLayer.Set(theme.Prompt(app.opts.Prompt))

	app.controller.SetMaxFPS(cfg.Render.MaxFPS)
	app.controller.InvalidateCache()
	app.controller.MarkFullRedraw()
	app.contentDirty = true

	app.log.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	app.cfg = cfg.Clone()
	app.log.Info("configuration applied: strategy=%s theme=%s", cfg.Composition.Strategy, theme.Name)
	return nil
}

// Config returns a copy of the active configuration.
func (app *Application) Config() *config.Config {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.cfg.Clone()
}

// Metrics returns the render metrics.
func (app *Application) Metrics() metrics.Snapshot {
	return app.controller.Metrics()
}

// EngineStats returns the composition counters.
func (app *Application) EngineStats() compose.Stats {
	return app.engine.Stats()
}

func (app *Application) notify() {
	select {
	case app.wake <- struct{}{}:
	default:
	}
}

// leave moves below the frame so the shell continues on a fresh row.
func (app *Application) leave() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.painted {
		app.write(app.paint.finish(app.end))
		app.painted = false
	}
	return nil
}

// Close releases the controller and the continuation provider.
func (app *Application) Close() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	err := app.teardown()
	app.log.Info("session closed: %d commands accepted", app.accepted.Load())
	return err
}

func (app *Application) teardown() error {
	var errs []error
	if app.controller != nil {
		errs = append(errs, app.controller.Close())
	}
	if app.closer != nil {
		errs = append(errs, app.closer.Close())
		app.closer = nil
	}
	return errors.Join(errs...)
}
