// Package terminal drives the controlling terminal in raw mode for the
// line editor: input decoding, output and size tracking.
package terminal

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ErrClosed is returned by operations on a closed terminal.
var ErrClosed = errors.New("terminal closed")

// Terminal is a raw-mode terminal backed by a tcell.Tty. Output is written
// inline; the alternate screen is never entered.
type Terminal struct {
	tty tcell.Tty

	mu       sync.Mutex
	width    int
	height   int
	onResize func(width, height int)
	started  bool
	closed   bool
}

// Open opens the controlling terminal (/dev/tty).
func Open() (*Terminal, error) {
	tty, err := tcell.NewDevTty()
	if err != nil {
		return nil, err
	}
	return New(tty), nil
}

// New wraps tty.
func New(tty tcell.Tty) *Terminal {
	return &Terminal{tty: tty, width: 80, height: 24}
}

// Start enters raw mode and begins tracking the window size.
func (t *Terminal) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.started {
		return nil
	}
	if err := t.tty.Start(); err != nil {
		return err
	}
	t.started = true
	t.refreshLocked()
	t.tty.NotifyResize(t.handleResize)
	return nil
}

// Stop restores the terminal mode saved by Start.
func (t *Terminal) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Terminal) stopLocked() error {
	if !t.started {
		return nil
	}
	t.started = false
	t.tty.NotifyResize(nil)
	_ = t.tty.Drain()
	return t.tty.Stop()
}

// Close restores the terminal and releases it.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	err := t.stopLocked()
	if cerr := t.tty.Close(); err == nil {
		err = cerr
	}
	return err
}

// Size returns the window size in columns and rows.
func (t *Terminal) Size() (width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// OnResize registers a callback for window size changes.
func (t *Terminal) OnResize(fn func(width, height int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResize = fn
}

func (t *Terminal) handleResize() {
	t.mu.Lock()
	t.refreshLocked()
	fn, w, h := t.onResize, t.width, t.height
	t.mu.Unlock()

	if fn != nil {
		fn(w, h)
	}
}

func (t *Terminal) refreshLocked() {
	ws, err := t.tty.WindowSize()
	if err != nil || ws.Width <= 0 || ws.Height <= 0 {
		return
	}
	t.width, t.height = ws.Width, ws.Height
}

// Write writes raw bytes to the terminal.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return t.tty.Write(p)
}

// Events reads input until ctx is done or the terminal fails, sending one
// event per key press. The channel is closed when reading stops.
func (t *Terminal) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)

		var (
			dec    Decoder
			events []Event
		)
		buf := make([]byte, 4096)
		for {
			n, err := t.tty.Read(buf)
			if n > 0 {
				events = dec.Decode(events[:0], buf[:n])
				if len(events) == 0 {
					events = dec.Flush(events)
				}
				for _, ev := range events {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					return
				}
				select {
				case out <- Event{Key: KeyCtrlD}:
				case <-ctx.Done():
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}
