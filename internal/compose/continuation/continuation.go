// Package continuation provides the prompts shown before the second and
// later lines of a multi-line command.
package continuation

import "errors"

// DefaultPrompt is the prefix used when no better prompt is available.
const DefaultPrompt = "> "

// ErrNoPrompt is returned when a provider has nothing for a line.
var ErrNoPrompt = errors.New("no continuation prompt")

// Provider returns the continuation prompt for line (1-based within the
// command, line 0 being the primary prompt's line) of command.
type Provider interface {
	PromptForLine(line int, command string) (string, error)
}

// Static returns the same prompt for every line.
type Static struct {
	Prompt string
}

// NewStatic creates a static provider. An empty prompt uses DefaultPrompt.
func NewStatic(prompt string) Static {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return Static{Prompt: prompt}
}

// PromptForLine returns the static prompt.
func (s Static) PromptForLine(line int, command string) (string, error) {
	if line < 1 {
		return "", ErrNoPrompt
	}
	if s.Prompt == "" {
		return DefaultPrompt, nil
	}
	return s.Prompt, nil
}
