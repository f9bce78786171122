package compose

import (
	"strings"
	"unicode"

	"github.com/dshills/stormline/internal/renderer/layout"
)

// asciiArtPercent is the share of box-drawing glyphs among non-space
// characters above which a prompt is treated as ASCII art.
const asciiArtPercent = 30

// PromptAnalysis describes the shape of a prompt. It is computed once per
// composition and never mutated afterwards.
type PromptAnalysis struct {
	// LineCount is the number of lines, counting an empty line after a
	// trailing line break.
	LineCount int

	// LastLineWidth is the visible width of the last line.
	LastLineWidth int

	// MaxLineWidth is the visible width of the widest line.
	MaxLineWidth int

	HasANSI     bool
	IsMultiline bool

	// AsciiArt is set when box-drawing glyphs make up more than 30% of the
	// non-space characters.
	AsciiArt bool

	// TrailingSpace is set when the visible text ends with a space.
	TrailingSpace bool

	// EndsWithNewline is set when the prompt ends with a line break, so the
	// command starts at column 0 of an empty line.
	EndsWithNewline bool

	// Recommended is the strategy suited to this prompt.
	Recommended Strategy
}

// AnalyzePrompt measures prompt and recommends a layout strategy.
func AnalyzePrompt(prompt string, m layout.Measurer) PromptAnalysis {
	lines := strings.Split(prompt, "\n")

	a := PromptAnalysis{
		LineCount:       len(lines),
		HasANSI:         layout.HasANSI(prompt),
		IsMultiline:     len(lines) > 1,
		EndsWithNewline: strings.HasSuffix(prompt, "\n"),
	}

	for _, line := range lines {
		a.MaxLineWidth = max(a.MaxLineWidth, layout.VisibleWidth(line, m))
	}
	last := lines[len(lines)-1]
	a.LastLineWidth = layout.VisibleWidth(last, m)
	a.TrailingSpace = strings.HasSuffix(layout.StripANSI(last), " ")
	a.AsciiArt = isASCIIArt(layout.StripANSI(prompt))

	switch {
	case a.AsciiArt:
		a.Recommended = AsciiArt
	case a.IsMultiline && (a.HasANSI || a.LineCount > 2):
		a.Recommended = Complex
	case a.IsMultiline:
		a.Recommended = Multiline
	default:
		a.Recommended = Simple
	}
	return a
}

func isASCIIArt(s string) bool {
	var box, visible int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if isBoxDrawing(r) {
			box++
		}
	}
	return visible > 0 && box*100 > visible*asciiArtPercent
}

// isBoxDrawing reports whether r is in the Box Drawing or Block Elements
// blocks.
func isBoxDrawing(r rune) bool {
	return r >= 0x2500 && r <= 0x259F
}
