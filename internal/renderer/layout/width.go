// Package layout maps byte offsets in prompt and command text to screen
// positions and measures the visible width of terminal text.
package layout

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// Measurer reports how many terminal columns a codepoint occupies.
type Measurer interface {
	RuneWidth(r rune) int
}

// SingleWidth counts every codepoint as one column.
//
// This is the pipeline's default and a known simplification: East Asian wide
// characters and emoji occupy two columns on most terminals. EastAsianWidth
// is available as an opt-in.
type SingleWidth struct{}

// RuneWidth always returns 1.
func (SingleWidth) RuneWidth(rune) int { return 1 }

// EastAsianWidth measures codepoints with go-runewidth.
// Zero-width codepoints still advance one column so that every byte offset
// maps to a distinct cursor position.
type EastAsianWidth struct {
	cond *runewidth.Condition
}

// NewEastAsianWidth creates a wide-character aware measurer.
func NewEastAsianWidth() EastAsianWidth {
	return EastAsianWidth{cond: runewidth.NewCondition()}
}

// RuneWidth returns 1 or 2.
func (m EastAsianWidth) RuneWidth(r rune) int {
	w := 0
	if m.cond != nil {
		w = m.cond.RuneWidth(r)
	} else {
		w = runewidth.RuneWidth(r)
	}
	if w < 1 {
		return 1
	}
	return w
}

// StripANSI removes escape sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansi.Strip(s)
}

// HasANSI reports whether s contains an escape sequence.
func HasANSI(s string) bool {
	return strings.Contains(s, "\x1b") && ansi.Strip(s) != s
}

// VisibleWidth returns the number of columns s occupies once escape
// sequences are stripped. Tabs advance to the next tab stop. s is treated
// as a single line.
func VisibleWidth(s string, m Measurer) int {
	if m == nil {
		m = SingleWidth{}
	}
	tabs := NewTabExpander(DefaultTabWidth)
	col := 0
	for _, r := range StripANSI(s) {
		switch {
		case r == '\t':
			col = tabs.NextTabStop(col)
		case r < utf8.RuneSelf:
			col++
		default:
			col += m.RuneWidth(r)
		}
	}
	return col
}

// LastLine returns the text after the final line break of s.
func LastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
