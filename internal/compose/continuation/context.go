package continuation

import "strings"

// Construct names used as continuation prompts, innermost wins.
const (
	quote   = "quote"
	dquote  = "dquote"
	bquote  = "bquote"
	subsh   = "subsh"
	brace   = "brace"
	pipe    = "pipe"
	cmdand  = "cmdand"
	cmdor   = "cmdor"
	forKw   = "for"
	whileKw = "while"
	untilKw = "until"
	ifKw    = "if"
	caseKw  = "case"
	selKw   = "select"
)

// closers maps an opening keyword to the keyword that closes it.
var closers = map[string]string{
	forKw:   "done",
	whileKw: "done",
	untilKw: "done",
	selKw:   "done",
	ifKw:    "fi",
	caseKw:  "esac",
}

// Context names the unterminated shell construct the command is inside,
// the way zsh's PS2 does: "dquote> ", "for> ", "pipe> " and so on.
type Context struct {
	// Fallback is returned when no construct is open. Defaults to DefaultPrompt.
	Fallback string
}

// NewContext creates a context-aware provider.
func NewContext() Context {
	return Context{Fallback: DefaultPrompt}
}

// PromptForLine scans the lines of command before line and names the
// innermost construct still open at that point.
func (c Context) PromptForLine(line int, command string) (string, error) {
	if line < 1 {
		return "", ErrNoPrompt
	}

	lines := strings.Split(command, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	prefix := strings.Join(lines[:line], "\n")

	if open := OpenConstructs(prefix); len(open) > 0 {
		return strings.Join(open, " ") + "> ", nil
	}
	if c.Fallback == "" {
		return DefaultPrompt, nil
	}
	return c.Fallback, nil
}

// OpenConstructs returns the constructs left open at the end of text,
// outermost first.
func OpenConstructs(text string) []string {
	s := scanner{cmdStart: true}
	s.scan(text)
	return s.result()
}

type scanner struct {
	stack    []string
	word     strings.Builder
	cmdStart bool
	trailing string // pipe, cmdand or cmdor when the text ends with one
}

func (s *scanner) top() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1]
}

func (s *scanner) push(name string) {
	s.stack = append(s.stack, name)
}

func (s *scanner) pop(name string) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == name {
			s.stack = s.stack[:i]
			return
		}
	}
}

func (s *scanner) scan(text string) {
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch s.top() {
		case quote:
			if ch == '\'' {
				s.pop(quote)
			}
			continue
		case dquote:
			switch ch {
			case '\\':
				i++
			case '"':
				s.pop(dquote)
			case '`':
				s.push(bquote)
			}
			continue
		case bquote:
			switch ch {
			case '\\':
				i++
			case '`':
				s.pop(bquote)
			}
			continue
		}

		if ch != ' ' && ch != '\t' && ch != '\n' {
			s.trailing = ""
		}

		switch ch {
		case '\\':
			if i+1 < len(text) {
				i++
				s.word.WriteByte(text[i])
			}
		case '\'':
			s.push(quote)
			s.cmdStart = false
		case '"':
			s.push(dquote)
			s.cmdStart = false
		case '`':
			s.push(bquote)
			s.cmdStart = false
		case '#':
			if s.word.Len() == 0 {
				for i < len(text) && text[i] != '\n' {
					i++
				}
				s.endWord()
				s.cmdStart = true
				continue
			}
			s.word.WriteByte(ch)
		case '(':
			s.endWord()
			s.push(subsh)
			s.cmdStart = true
		case ')':
			s.endWord()
			s.pop(subsh)
			s.cmdStart = false
		case '{':
			if s.word.Len() == 0 && s.cmdStart {
				s.push(brace)
				s.cmdStart = true
				continue
			}
			s.word.WriteByte(ch)
		case '}':
			if s.word.Len() == 0 {
				s.pop(brace)
				s.cmdStart = false
				continue
			}
			s.word.WriteByte(ch)
		case ';', '\n':
			s.endWord()
			s.cmdStart = true
		case '|':
			s.endWord()
			if i+1 < len(text) && text[i+1] == '|' {
				i++
				s.trailing = cmdor
			} else {
				s.trailing = pipe
			}
			s.cmdStart = true
		case '&':
			s.endWord()
			if i+1 < len(text) && text[i+1] == '&' {
				i++
				s.trailing = cmdand
			}
			s.cmdStart = true
		case ' ', '\t':
			s.endWord()
		default:
			s.word.WriteByte(ch)
		}
	}
	s.endWord()
}

// endWord classifies the word just completed.
func (s *scanner) endWord() {
	if s.word.Len() == 0 {
		return
	}
	w := s.word.String()
	s.word.Reset()

	if !s.cmdStart {
		return
	}
	switch w {
	case forKw, whileKw, untilKw, ifKw, caseKw, selKw:
		s.push(w)
		// The loop or condition header is a command position again after ;
		s.cmdStart = w == whileKw || w == untilKw || w == ifKw
		return
	case "then", "do", "else", "elif":
		s.cmdStart = true
		return
	case "done", "fi", "esac":
		for open, closer := range closers {
			if closer == w && s.top() == open {
				s.pop(open)
				break
			}
		}
	}
	s.cmdStart = false
}

func (s *scanner) result() []string {
	out := append([]string(nil), s.stack...)
	if s.trailing != "" {
		out = append(out, s.trailing)
	}
	return out
}
