package compose

import (
	"github.com/dshills/stormline/internal/renderer/layout"
)

// ComposeWithCursor composes the content of the prompt and command layers
// and locates byte offset of the command on screen.
//
// The walk starts where the command starts: after the prompt's last line,
// or at column 0 of the line below it. It counts command bytes as they are,
// escape sequences included. found is false when offset is outside the
// command.
func (e *Engine) ComposeWithCursor(offset, width int) (frame *Frame, pos layout.Position, found bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prompt, command, err := e.content()
	if err != nil {
		return nil, layout.Position{}, false, err
	}

	frame, err = e.composeLocked(prompt, command)
	if err != nil {
		return nil, layout.Position{}, false, err
	}

	pos, found = locate(frame, command, offset, width, e.cfg.Measure)
	return frame, pos, found, nil
}

// Locate maps a byte offset of command to a screen position within a
// frame composed from it.
func (e *Engine) Locate(frame *Frame, command string, offset, width int) (layout.Position, bool) {
	e.mu.Lock()
	m := e.cfg.Measure
	e.mu.Unlock()
	return locate(frame, command, offset, width, m)
}

func locate(frame *Frame, command string, offset, width int, m layout.Measurer) (layout.Position, bool) {
	w := layout.Walker{Measure: m}
	if prefixes := frame.LinePrefixes; len(prefixes) > 1 {
		w.LineIndent = func(line int) int {
			if line < len(prefixes) {
				return layout.VisibleWidth(layout.LastLine(prefixes[line]), m)
			}
			return 0
		}
	}

	start := layout.Position{
		Row: frame.Positioning.StartLine,
		Col: frame.Positioning.StartColumn,
	}
	return w.Locate(command, offset, start, width)
}
