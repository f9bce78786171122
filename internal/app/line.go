package app

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/stormline/internal/compose/continuation"
)

// LineBuffer is the command being edited and the cursor's byte offset in
// it. Edits return the first byte offset whose content changed.
type LineBuffer struct {
	text   []byte
	cursor int
}

// String returns the command text.
func (b *LineBuffer) String() string {
	return string(b.text)
}

// Len returns the command length in bytes.
func (b *LineBuffer) Len() int {
	return len(b.text)
}

// Cursor returns the cursor's byte offset.
func (b *LineBuffer) Cursor() int {
	return b.cursor
}

// Reset empties the buffer.
func (b *LineBuffer) Reset() {
	b.text = b.text[:0]
	b.cursor = 0
}

// Insert inserts s at the cursor.
func (b *LineBuffer) Insert(s string) int {
	at := b.cursor
	b.text = append(b.text[:at], append([]byte(s), b.text[at:]...)...)
	b.cursor += len(s)
	return at
}

// Backspace deletes the character before the cursor.
func (b *LineBuffer) Backspace() (int, bool) {
	if b.cursor == 0 {
		return 0, false
	}
	_, size := utf8.DecodeLastRune(b.text[:b.cursor])
	return b.cut(b.cursor-size, b.cursor), true
}

// Delete deletes the character under the cursor.
func (b *LineBuffer) Delete() (int, bool) {
	if b.cursor >= len(b.text) {
		return 0, false
	}
	_, size := utf8.DecodeRune(b.text[b.cursor:])
	return b.cut(b.cursor, b.cursor+size), true
}

// DeleteWord deletes the word before the cursor.
func (b *LineBuffer) DeleteWord() (int, bool) {
	start := b.cursor
	for start > 0 {
		r, size := utf8.DecodeLastRune(b.text[:start])
		if !unicode.IsSpace(r) {
			break
		}
		start -= size
	}
	for start > 0 {
		r, size := utf8.DecodeLastRune(b.text[:start])
		if unicode.IsSpace(r) {
			break
		}
		start -= size
	}
	if start == b.cursor {
		return 0, false
	}
	return b.cut(start, b.cursor), true
}

// KillToEnd deletes from the cursor to the end of its line.
func (b *LineBuffer) KillToEnd() (int, bool) {
	end := b.lineEnd()
	if end == b.cursor {
		return 0, false
	}
	return b.cut(b.cursor, end), true
}

// KillToStart deletes from the start of the cursor's line to the cursor.
func (b *LineBuffer) KillToStart() (int, bool) {
	start := b.lineStart()
	if start == b.cursor {
		return 0, false
	}
	return b.cut(start, b.cursor), true
}

func (b *LineBuffer) cut(start, end int) int {
	b.text = append(b.text[:start], b.text[end:]...)
	b.cursor = start
	return start
}

// Left moves the cursor one character left.
func (b *LineBuffer) Left() bool {
	if b.cursor == 0 {
		return false
	}
	_, size := utf8.DecodeLastRune(b.text[:b.cursor])
	b.cursor -= size
	return true
}

// Right moves the cursor one character right.
func (b *LineBuffer) Right() bool {
	if b.cursor >= len(b.text) {
		return false
	}
	_, size := utf8.DecodeRune(b.text[b.cursor:])
	b.cursor += size
	return true
}

// Home moves the cursor to the start of its line.
func (b *LineBuffer) Home() bool {
	start := b.lineStart()
	moved := start != b.cursor
	b.cursor = start
	return moved
}

// End moves the cursor to the end of its line.
func (b *LineBuffer) End() bool {
	end := b.lineEnd()
	moved := end != b.cursor
	b.cursor = end
	return moved
}

func (b *LineBuffer) lineStart() int {
	for i := b.cursor - 1; i >= 0; i-- {
		if b.text[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func (b *LineBuffer) lineEnd() int {
	for i := b.cursor; i < len(b.text); i++ {
		if b.text[i] == '\n' {
			return i
		}
	}
	return len(b.text)
}

// NeedsContinuation reports whether accepting the command should open a
// new line instead: the command ends with an unescaped backslash or leaves
// a quote, group or compound command open.
func (b *LineBuffer) NeedsContinuation() bool {
	text := string(b.text)
	trailing := len(text) - len(strings.TrimRight(text, "\\"))
	if trailing%2 == 1 {
		return true
	}
	return len(continuation.OpenConstructs(text)) > 0
}
