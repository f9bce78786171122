package compose

import (
	"fmt"
	"strings"

	"github.com/dshills/stormline/internal/renderer/core"
)

// Strategy is a layout algorithm for combining prompt and command.
type Strategy uint8

const (
	// Adaptive uses the strategy recommended by prompt analysis.
	Adaptive Strategy = iota
	// Simple puts the command after the prompt, on the same line when the
	// positioning allows it.
	Simple
	// Multiline puts the command below a multi-line prompt.
	Multiline
	// Complex is Multiline for prompts with color or more than two lines.
	Complex
	// AsciiArt puts the command below a box-drawing prompt.
	AsciiArt
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Adaptive:
		return "adaptive"
	case Simple:
		return "simple"
	case Multiline:
		return "multiline"
	case Complex:
		return "complex"
	case AsciiArt:
		return "ascii_art"
	default:
		return fmt.Sprintf("strategy(%d)", s)
	}
}

// ParseStrategy converts a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "adaptive":
		return Adaptive, nil
	case "simple":
		return Simple, nil
	case "multiline":
		return Multiline, nil
	case "complex":
		return Complex, nil
	case "ascii_art", "asciiart":
		return AsciiArt, nil
	default:
		return Adaptive, core.Errorf("compose", core.ErrInvalidParameter, "unknown strategy %q", name)
	}
}

// resolve returns the concrete strategy for a prompt.
func (s Strategy) resolve(a PromptAnalysis) Strategy {
	if s == Adaptive {
		return a.Recommended
	}
	return s
}

// assemble lays out prompt and command with strategy s and returns the
// frame bytes and the actual positioning.
func assemble(s Strategy, prompt, command string, a PromptAnalysis, p Positioning, commandWidth, termWidth int) ([]byte, Positioning) {
	buf := make([]byte, 0, len(prompt)+len(command)+1)
	buf = append(buf, prompt...)

	switch s {
	case Multiline, Complex, AsciiArt:
		// The command always goes directly below these prompts.
		if !a.EndsWithNewline {
			buf = append(buf, '\n')
		}
		p = placeBelow(a, commandWidth, termWidth)
	default:
		if !p.SameLine {
			buf = append(buf, '\n')
		} else if needsSpace(a) {
			buf = append(buf, ' ')
		}
	}

	buf = append(buf, command...)
	return buf, p
}
