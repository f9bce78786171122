package layout

import "unicode/utf8"

// Position is a zero-based screen position.
type Position struct {
	Row int
	Col int
}

// Walker maps byte offsets in a command buffer to screen positions.
//
// The walk is byte oriented: ASCII bytes advance one column, tabs advance to
// the next tab stop and other codepoints advance by the Measurer's width.
// Escape sequences inside the walked text are not skipped; each of their
// bytes advances one column like any other ASCII byte.
type Walker struct {
	// Measure measures non-ASCII codepoints. Defaults to SingleWidth.
	Measure Measurer

	// TabWidth is the tab stop interval. Defaults to DefaultTabWidth.
	TabWidth int

	// LineIndent returns the starting column of command line n (n >= 1)
	// after a line break. Nil means column 0.
	LineIndent func(line int) int
}

// Translate walks text starting at column 0 of row 0.
func Translate(text string, offset, width int) (Position, bool) {
	return Walker{}.Locate(text, offset, Position{}, width)
}

// Locate walks text from start and returns the screen position of the byte
// at offset. Columns wrap to the next row when they reach width; a width of
// zero or less disables wrapping. The position is recorded at the first byte
// index equal to offset; an offset inside a multi-byte character resolves to
// the position after that character. Returns false if offset is outside
// [0, len(text)].
func (w Walker) Locate(text string, offset int, start Position, width int) (Position, bool) {
	if offset < 0 || offset > len(text) {
		return Position{}, false
	}

	measure := w.Measure
	if measure == nil {
		measure = SingleWidth{}
	}
	tabs := NewTabExpander(w.TabWidth)

	x, y := start.Col, start.Row
	if width > 0 && x >= width {
		y += x / width
		x %= width
	}

	line := 0
	for i := 0; i < len(text); {
		if i == offset {
			return Position{Row: y, Col: x}, true
		}

		b := text[i]
		size := 1
		switch {
		case b == '\n':
			line++
			y++
			x = 0
			if w.LineIndent != nil {
				x = w.LineIndent(line)
			}
			if width > 0 && x >= width {
				y += x / width
				x %= width
			}
			i++
			continue
		case b == '\t':
			x += tabs.TabStopOffset(x)
		case b < utf8.RuneSelf:
			x++
		default:
			var r rune
			r, size = utf8.DecodeRuneInString(text[i:])
			if r == utf8.RuneError && size <= 1 {
				size = 1
				x++
			} else {
				x += measure.RuneWidth(r)
			}
		}

		if width > 0 && x >= width {
			x = 0
			y++
		}

		if offset > i && offset < i+size {
			return Position{Row: y, Col: x}, true
		}
		i += size
	}

	// offset == len(text)
	return Position{Row: y, Col: x}, true
}
