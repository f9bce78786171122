// Package cursor turns cursor state into terminal escape sequences.
package cursor

import (
	"strconv"
	"sync"

	"github.com/dshills/stormline/internal/renderer/core"
)

// MinBufferSize is the worst-case length of any sequence this package emits.
// Destination buffers smaller than this are rejected.
const MinBufferSize = 32

// MaxCoordinate is the largest Line or VisualColumn that can be positioned.
// Both 1-based values then have at most 10 digits, keeping a CUP sequence
// within MinBufferSize.
const MaxCoordinate = 999_999_998

// Escape sequences.
const (
	seqHide = "\x1b[?25l"
	seqShow = "\x1b[?25h"
)

// Style represents the visual appearance of the cursor.
type Style uint8

const (
	// StyleDefault leaves the terminal's cursor shape alone.
	StyleDefault Style = iota
	// StyleBlock is a steady filled block.
	StyleBlock
	// StyleBar is a steady vertical bar.
	StyleBar
	// StyleUnderline is a steady underscore.
	StyleUnderline
)

// decscusr returns the DECSCUSR parameter for the style.
func (s Style) decscusr() int {
	switch s {
	case StyleBlock:
		return 2
	case StyleUnderline:
		return 4
	case StyleBar:
		return 6
	default:
		return 0
	}
}

// StyleFromString converts a string name to a cursor style.
func StyleFromString(s string) Style {
	switch s {
	case "block":
		return StyleBlock
	case "bar", "line":
		return StyleBar
	case "underline", "underscore":
		return StyleUnderline
	default:
		return StyleDefault
	}
}

// String returns the string representation of a cursor style.
func (s Style) String() string {
	switch s {
	case StyleBlock:
		return "block"
	case StyleBar:
		return "bar"
	case StyleUnderline:
		return "underline"
	default:
		return "default"
	}
}

// Cursor is a cursor position in frame coordinates.
type Cursor struct {
	// Line is the zero-based frame row.
	Line int

	// VisualColumn is the zero-based screen column.
	VisualColumn int

	// Hidden hides the cursor instead of positioning it.
	Hidden bool
}

// Config holds cursor configuration.
type Config struct {
	// Style is the cursor shape requested from the terminal.
	Style Style
}

// DefaultConfig returns the default cursor configuration.
func DefaultConfig() Config {
	return Config{Style: StyleDefault}
}

// Renderer emits cursor escape sequences.
type Renderer struct {
	mu     sync.RWMutex
	config Config
}

// New creates a new cursor renderer with the given configuration.
func New(config Config) *Renderer {
	return &Renderer{config: config}
}

// Config returns the current configuration.
func (r *Renderer) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// SetStyle updates the cursor style.
func (r *Renderer) SetStyle(style Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Style = style
}

// RenderPosition writes the sequence for c into dst and returns the number
// of bytes written. A hidden cursor yields the hide sequence; otherwise a
// 1-based CUP sequence at (Line+1, VisualColumn+1).
func (r *Renderer) RenderPosition(c Cursor, dst []byte) (int, error) {
	if len(dst) < MinBufferSize {
		return 0, core.Errorf("cursor", core.ErrInvalidParameter, "destination %d bytes, need %d", len(dst), MinBufferSize)
	}
	if c.Line < 0 || c.VisualColumn < 0 || c.Line > MaxCoordinate || c.VisualColumn > MaxCoordinate {
		return 0, core.Errorf("cursor", core.ErrInvalidParameter, "position %d,%d", c.Line, c.VisualColumn)
	}
	return copy(dst, AppendPosition(dst[:0:MinBufferSize], c)), nil
}

// ShapeSequence returns the DECSCUSR sequence for the configured style, or
// an empty string for StyleDefault.
func (r *Renderer) ShapeSequence() string {
	r.mu.RLock()
	style := r.config.Style
	r.mu.RUnlock()

	if style == StyleDefault {
		return ""
	}
	return "\x1b[" + strconv.Itoa(style.decscusr()) + " q"
}

// Close releases renderer resources.
func (r *Renderer) Close() error {
	return nil
}

// AppendPosition appends the sequence for c to dst. Coordinates are not
// range checked; RenderPosition does that.
func AppendPosition(dst []byte, c Cursor) []byte {
	if c.Hidden {
		return append(dst, seqHide...)
	}
	dst = append(dst, "\x1b["...)
	dst = strconv.AppendInt(dst, int64(c.Line)+1, 10)
	dst = append(dst, ';')
	dst = strconv.AppendInt(dst, int64(c.VisualColumn)+1, 10)
	return append(dst, 'H')
}

// Show returns the sequence that makes the cursor visible.
func Show() string { return seqShow }

// Hide returns the sequence that hides the cursor.
func Hide() string { return seqHide }
