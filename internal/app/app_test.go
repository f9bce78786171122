package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/stormline/internal/config"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/terminal"
)

const (
	hide = "\x1b[?25l"
	show = "\x1b[?25h"
)

type fixedDisplay struct {
	mu            sync.Mutex
	width, height int
}

func (d *fixedDisplay) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// syncBuffer is a bytes.Buffer safe for the Run goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// take returns and clears what was written so far.
func (b *syncBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Theme.PromptColor = ""
	cfg.Theme.PathColor = ""
	cfg.Render.MaxFPS = 0
	return cfg
}

type harness struct {
	app      *Application
	out      *syncBuffer
	display  *fixedDisplay
	accepted []string
}

func newHarness(t *testing.T, width int, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{out: &syncBuffer{}, display: &fixedDisplay{width: width, height: 24}}
	app, err := New(Options{
		Config:   cfg,
		Output:   h.out,
		Display:  h.display,
		Prompt:   PromptInfo{User: "u"},
		OnAccept: func(cmd string) { h.accepted = append(h.accepted, cmd) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	h.app = app
	return h
}

func (h *harness) present(t *testing.T) string {
	t.Helper()
	if err := h.app.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	return h.out.take()
}

func (h *harness) keys(t *testing.T, events ...terminal.Event) {
	t.Helper()
	for _, ev := range events {
		if _, err := h.app.HandleEvent(ev); err != nil {
			t.Fatalf("HandleEvent(%v) error = %v", ev.Key, err)
		}
	}
}

func typed(s string) []terminal.Event {
	events := make([]terminal.Event, 0, len(s))
	for _, r := range s {
		events = append(events, terminal.Event{Key: terminal.KeyRune, Rune: r})
	}
	return events
}

func key(k terminal.Key) terminal.Event {
	return terminal.Event{Key: k}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Display: &fixedDisplay{width: 80}}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("New(no output) error = %v, want ErrInvalidParameter", err)
	}
	if _, err := New(Options{Output: &bytes.Buffer{}}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("New(no display) error = %v, want ErrInvalidParameter", err)
	}

	cfg := testConfig()
	cfg.Composition.Strategy = "spiral"
	_, err := New(Options{Config: cfg, Output: &bytes.Buffer{}, Display: &fixedDisplay{width: 80}})
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Component != "config" {
		t.Errorf("New(bad config) error = %v, want config InitError", err)
	}

	cfg = testConfig()
	cfg.Continuation.Mode = config.ContinuationLua
	cfg.Continuation.Script = "/nonexistent/prompt.lua"
	_, err = New(Options{Config: cfg, Output: &bytes.Buffer{}, Display: &fixedDisplay{width: 80}})
	if !errors.As(err, &initErr) || initErr.Component != "continuation" {
		t.Errorf("New(missing script) error = %v, want continuation InitError", err)
	}
}

func TestNewAssignsSession(t *testing.T) {
	a := newHarness(t, 80, nil)
	b := newHarness(t, 80, nil)
	if a.app.Session() == "" || a.app.Session() == b.app.Session() {
		t.Errorf("sessions %q and %q should be distinct and non-empty", a.app.Session(), b.app.Session())
	}
}

func TestFirstPresentPaintsPrompt(t *testing.T) {
	h := newHarness(t, 80, nil)
	got := h.present(t)

	want := h.app.controller.CursorShape() + hide + "\r\x1b[J" + "u$ " + "\r\x1b[3C" + show
	if got != want {
		t.Errorf("first frame = %q, want %q", got, want)
	}
}

func TestTypingRepaintsDirtyTail(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)

	h.keys(t, typed("l")...)
	got := h.present(t)
	want := hide + "\r\x1b[J" + "u$ l" + "\r\x1b[4C" + show
	if got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}

	if m := h.app.Metrics(); m.PartialRenders != 1 {
		t.Errorf("PartialRenders = %d, want 1", m.PartialRenders)
	}
}

func TestCursorMoveDoesNotRepaint(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.keys(t, typed("ls")...)
	h.present(t)
	before := h.app.Metrics().TotalRenders

	h.keys(t, key(terminal.KeyLeft))
	if got := h.present(t); got != "\r\x1b[4C" {
		t.Errorf("cursor move = %q, want %q", got, "\r\x1b[4C")
	}

	h.keys(t, key(terminal.KeyHome))
	if got := h.present(t); got != "\r\x1b[3C" {
		t.Errorf("home = %q, want %q", got, "\r\x1b[3C")
	}

	if after := h.app.Metrics().TotalRenders; after != before {
		t.Errorf("cursor moves rendered %d frames", after-before)
	}
}

func TestEditingKeys(t *testing.T) {
	tests := []struct {
		name   string
		events []terminal.Event
		want   string
	}{
		{"insert", typed("echo hi"), "echo hi"},
		{"backspace", append(typed("echo hi"), key(terminal.KeyBackspace)), "echo h"},
		{"delete at end is a no-op", append(typed("ab"), key(terminal.KeyDelete)), "ab"},
		{"delete under cursor", append(typed("ab"), key(terminal.KeyCtrlA), key(terminal.KeyDelete)), "b"},
		{"delete word", append(typed("git commit"), key(terminal.KeyCtrlW)), "git "},
		{"kill to end", append(typed("abc"), key(terminal.KeyLeft), key(terminal.KeyLeft), key(terminal.KeyCtrlK)), "a"},
		{"kill to start", append(typed("abc"), key(terminal.KeyLeft), key(terminal.KeyCtrlU)), "c"},
		{"insert in middle", append(append(typed("ac"), key(terminal.KeyLeft)), typed("b")...), "abc"},
		{"tab", append(typed("a"), key(terminal.KeyTab)), "a\t"},
		{"unknown keys ignored", []terminal.Event{key(terminal.KeyUp), key(terminal.KeyEscape)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 80, nil)
			h.keys(t, tt.events...)
			if got := h.app.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
			// Every state must compose and paint.
			h.present(t)
		})
	}
}

func TestWrappedCommand(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.present(t)

	h.keys(t, typed("abcdefghij")...)
	got := h.present(t)

	// "u$ abcdefghij" is 13 columns on a 10-column terminal: the cursor
	// ends at row 1 column 3.
	if !strings.HasSuffix(got, "\r\x1b[3C"+show) {
		t.Errorf("frame %q does not end at column 3", got)
	}
	if h.app.paint.row != 1 {
		t.Errorf("painter row = %d, want 1", h.app.paint.row)
	}

	// The next repaint starts by moving back up to the origin.
	h.keys(t, key(terminal.KeyBackspace))
	got = h.present(t)
	if !strings.HasPrefix(got, hide+"\x1b[1A\r\x1b[J") {
		t.Errorf("repaint %q does not return to the origin", got)
	}
}

func TestAcceptCommand(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)
	h.keys(t, typed("ls")...)
	h.keys(t, key(terminal.KeyEnter))

	if len(h.accepted) != 1 || h.accepted[0] != "ls" {
		t.Fatalf("accepted = %q, want [ls]", h.accepted)
	}
	if h.app.Accepted() != 1 {
		t.Errorf("Accepted() = %d, want 1", h.app.Accepted())
	}
	if h.app.Command() != "" {
		t.Errorf("buffer not reset: %q", h.app.Command())
	}
	out := h.out.take()
	if !strings.Contains(out, "u$ ls") || !strings.HasSuffix(out, "\r\n"+show) {
		t.Errorf("accept output = %q", out)
	}

	// The next prompt starts a fresh frame below.
	got := h.present(t)
	if !strings.HasPrefix(got, h.app.controller.CursorShape()+hide+"\r\x1b[J"+"u$ ") {
		t.Errorf("next prompt = %q", got)
	}
}

func TestAcceptOpensContinuation(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)

	h.keys(t, typed(`echo "a`)...)
	h.keys(t, key(terminal.KeyEnter))
	if len(h.accepted) != 0 {
		t.Fatalf("open quote accepted: %q", h.accepted)
	}
	if got := h.app.Command(); got != "echo \"a\n" {
		t.Fatalf("Command() = %q", got)
	}

	frame := h.present(t)
	if !strings.Contains(frame, "\r\ndquote> ") {
		t.Errorf("frame %q lacks the dquote continuation prompt", frame)
	}
	if !strings.HasSuffix(frame, "\r\x1b[8C"+show) {
		t.Errorf("cursor not after the continuation prompt: %q", frame)
	}

	h.keys(t, typed(`b"`)...)
	h.keys(t, key(terminal.KeyEnter))
	if len(h.accepted) != 1 || h.accepted[0] != "echo \"a\nb\"" {
		t.Errorf("accepted = %q", h.accepted)
	}
}

func TestBackslashContinuation(t *testing.T) {
	h := newHarness(t, 80, func(cfg *config.Config) {
		cfg.Continuation.Mode = config.ContinuationStatic
		cfg.Continuation.Prompt = "... "
	})
	h.keys(t, typed(`make \`)...)
	h.keys(t, key(terminal.KeyEnter))
	h.keys(t, typed("all")...)

	frame := h.present(t)
	if !strings.Contains(frame, "\r\n... all") {
		t.Errorf("frame %q lacks the static continuation line", frame)
	}
	if len(h.accepted) != 0 {
		t.Errorf("accepted too early: %q", h.accepted)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []terminal.Key{terminal.KeyCtrlC, terminal.KeyCtrlD} {
		h := newHarness(t, 80, nil)
		if _, err := h.app.HandleEvent(key(k)); !errors.Is(err, ErrQuit) {
			t.Errorf("%v: error = %v, want ErrQuit", k, err)
		}
	}
}

func TestClearScreen(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)
	h.keys(t, typed("x")...)
	h.keys(t, key(terminal.KeyCtrlL))

	got := h.out.take() + h.present(t)
	if !strings.HasPrefix(got, "\x1b[H\x1b[2J") || !strings.Contains(got, "u$ x") {
		t.Errorf("clear output = %q", got)
	}
}

func TestRunProcessesEvents(t *testing.T) {
	h := newHarness(t, 80, nil)

	events := make(chan terminal.Event, 16)
	for _, ev := range typed("pwd") {
		events <- ev
	}
	events <- key(terminal.KeyEnter)
	events <- key(terminal.KeyCtrlD)

	if err := h.app.Run(context.Background(), events); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.accepted) != 1 || h.accepted[0] != "pwd" {
		t.Errorf("accepted = %q, want [pwd]", h.accepted)
	}
	if out := h.out.String(); !strings.HasSuffix(out, "\r\n"+show) {
		t.Errorf("Run did not leave the frame: %q", out)
	}
}

func TestRunStopsOnClosedChannelAndContext(t *testing.T) {
	h := newHarness(t, 80, nil)
	events := make(chan terminal.Event)
	close(events)
	if err := h.app.Run(context.Background(), events); err != nil {
		t.Errorf("Run(closed) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.app.Run(ctx, make(chan terminal.Event)); err != nil {
		t.Errorf("Run(canceled) error = %v", err)
	}
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, 80, nil)
	events := make(chan terminal.Event)
	done := make(chan error, 1)
	go func() { done <- h.app.Run(context.Background(), events) }()

	deadline := time.Now().Add(2 * time.Second)
	for !h.app.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Run did not start")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.app.Run(context.Background(), events); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	close(events)
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRunRateLimitsFrames(t *testing.T) {
	h := newHarness(t, 80, func(cfg *config.Config) { cfg.Render.MaxFPS = 20 })

	events := make(chan terminal.Event, 16)
	for _, ev := range typed("abc") {
		events <- ev
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx, events) }()

	// The deferred frame is presented once it is due.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(h.out.String(), "u$ abc") {
		if time.Now().After(deadline) {
			t.Fatalf("final frame never presented: %q", h.out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if total := h.app.Metrics().TotalRenders; total >= 4 {
		t.Errorf("TotalRenders = %d, want fewer than one per key", total)
	}
}

func TestResize(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)

	h.display.mu.Lock()
	h.display.width, h.display.height = 40, 12
	h.display.mu.Unlock()
	h.app.Resize(40, 12)

	if got := h.app.engine.Config().TerminalWidth; got != 40 {
		t.Errorf("engine width = %d, want 40", got)
	}
	if w, hgt := h.app.controller.DisplaySize(); w != 40 || hgt != 12 {
		t.Errorf("controller size = %dx%d, want 40x12", w, hgt)
	}
	got := h.present(t)
	if !strings.HasPrefix(got, hide+"\r\x1b[J") || h.app.Metrics().PartialRenders != 0 {
		t.Errorf("resize repaint = %q, want a full repaint", got)
	}
}

func TestApplyConfig(t *testing.T) {
	h := newHarness(t, 80, nil)
	h.present(t)

	cfg := testConfig()
	cfg.Composition.Strategy = "complex"
	cfg.Continuation.Mode = config.ContinuationStatic
	cfg.Continuation.Prompt = ">> "
	cfg.Theme.Name = "night"
	cfg.Logging.Level = "debug"
	if err := h.app.ApplyConfig(cfg); err != nil {
		t.Fatalf("ApplyConfig() error = %v", err)
	}

	got := h.app.Config()
	if got.Composition.Strategy != "complex" || got.Theme.Name != "night" {
		t.Errorf("config not applied: %+v", got.Composition)
	}
	if h.app.engine.Theme() != "night" {
		t.Errorf("engine theme = %q, want night", h.app.engine.Theme())
	}

	// Complex places the command on the line below the prompt.
	frame := h.present(t)
	if !strings.Contains(frame, "u$ \r\n") {
		t.Errorf("frame %q not laid out by the complex strategy", frame)
	}

	h.keys(t, typed(`a \`)...)
	h.keys(t, key(terminal.KeyEnter))
	if frame := h.present(t); !strings.Contains(frame, "\r\n>> ") {
		t.Errorf("frame %q lacks the reloaded continuation prompt", frame)
	}
}

func TestApplyConfigRejectsInvalid(t *testing.T) {
	h := newHarness(t, 80, nil)

	cfg := testConfig()
	cfg.Render.CursorStyle = "triangle"
	if err := h.app.ApplyConfig(cfg); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("ApplyConfig() error = %v, want ErrInvalidParameter", err)
	}
	if h.app.Config().Render.CursorStyle != "bar" {
		t.Error("rejected config was applied")
	}
}

func TestRowOf(t *testing.T) {
	frame := []byte("top line\n$ abcdefghij\nx")
	tests := []struct {
		name      string
		offset    int
		width     int
		wantRow   int
		wantStart int
	}{
		{"first line", 3, 80, 0, 0},
		{"second line", 12, 80, 1, 9},
		{"line break byte", 8, 80, 0, 0},
		{"after break", 9, 80, 1, 9},
		{"third line", 22, 80, 2, 22},
		{"wrapped lines", 22, 5, 5, 22},
		{"no wrapping", 22, 0, 2, 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, start := rowOf(frame, tt.offset, tt.width, nil)
			if row != tt.wantRow || start != tt.wantStart {
				t.Errorf("rowOf(%d, %d) = (%d, %d), want (%d, %d)", tt.offset, tt.width, row, start, tt.wantRow, tt.wantStart)
			}
		})
	}
}
