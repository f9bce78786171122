// Package vscreen assembles multi-line frames from command lines and the
// prefixes shown before each of them.
package vscreen

import (
	"bytes"
	"sync"

	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/layout"
)

// Screen holds the lines of a multi-line command and their prefixes.
type Screen struct {
	mu       sync.RWMutex
	lines    []string
	prefixes []string
	measure  layout.Measurer
}

// New creates an empty screen. A nil measurer uses layout.SingleWidth.
func New(measure layout.Measurer) *Screen {
	if measure == nil {
		measure = layout.SingleWidth{}
	}
	return &Screen{measure: measure}
}

// SetContent replaces the lines and clears every prefix.
func (s *Screen) SetContent(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = append(s.lines[:0], lines...)
	s.prefixes = make([]string, len(lines))
}

// SetLinePrefix sets the prefix shown before line.
func (s *Screen) SetLinePrefix(line int, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line < 0 || line >= len(s.lines) {
		return core.Errorf("vscreen", core.ErrInvalidParameter, "prefix for line %d of %d", line, len(s.lines))
	}
	s.prefixes[line] = prefix
	return nil
}

// LinePrefix returns the prefix of line.
func (s *Screen) LinePrefix(line int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if line < 0 || line >= len(s.prefixes) {
		return ""
	}
	return s.prefixes[line]
}

// LineCount returns the number of lines.
func (s *Screen) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// RenderMultilineWithPrefixes renders count lines starting at start, each
// preceded by its prefix, separated by line feeds.
func (s *Screen) RenderMultilineWithPrefixes(start, count int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 || count < 0 || start+count > len(s.lines) {
		return nil, core.Errorf("vscreen", core.ErrInvalidParameter,
			"render lines [%d, %d) of %d", start, start+count, len(s.lines))
	}

	size := 0
	for i := start; i < start+count; i++ {
		size += len(s.prefixes[i]) + len(s.lines[i]) + 1
	}

	var buf bytes.Buffer
	buf.Grow(size)
	for i := start; i < start+count; i++ {
		if i > start {
			buf.WriteByte('\n')
		}
		buf.WriteString(s.prefixes[i])
		buf.WriteString(s.lines[i])
	}
	return buf.Bytes(), nil
}

// Width returns the widest rendered line, prefixes included, in columns.
// ANSI sequences are not counted.
func (s *Screen) Width() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	widest := 0
	for i, line := range s.lines {
		w := layout.VisibleWidth(layout.LastLine(s.prefixes[i]), s.measure) +
			layout.VisibleWidth(line, s.measure)
		widest = max(widest, w)
	}
	return widest
}

// Reset clears lines and prefixes.
func (s *Screen) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = s.lines[:0]
	s.prefixes = s.prefixes[:0]
}
