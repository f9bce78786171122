package terminal

import (
	"unicode/utf8"
)

// Key identifies a decoded key press.
type Key int

// Keys understood by the line editor.
const (
	KeyNone Key = iota
	KeyRune     // printable character, see Event.Rune
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyTab
	KeyEscape
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyHome
	KeyEnd
	KeyCtrlA
	KeyCtrlC
	KeyCtrlD
	KeyCtrlE
	KeyCtrlK
	KeyCtrlL
	KeyCtrlU
	KeyCtrlW
)

var keyNames = map[Key]string{
	KeyNone:      "none",
	KeyRune:      "rune",
	KeyEnter:     "enter",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeyTab:       "tab",
	KeyEscape:    "escape",
	KeyLeft:      "left",
	KeyRight:     "right",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyCtrlA:     "ctrl+a",
	KeyCtrlC:     "ctrl+c",
	KeyCtrlD:     "ctrl+d",
	KeyCtrlE:     "ctrl+e",
	KeyCtrlK:     "ctrl+k",
	KeyCtrlL:     "ctrl+l",
	KeyCtrlU:     "ctrl+u",
	KeyCtrlW:     "ctrl+w",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one decoded key press.
type Event struct {
	Key  Key
	Rune rune
}

// Raw input sequences in raw mode.
var sequences = []struct {
	seq string
	key Key
}{
	{"\x1b[A", KeyUp},
	{"\x1b[B", KeyDown},
	{"\x1b[C", KeyRight},
	{"\x1b[D", KeyLeft},
	{"\x1b[H", KeyHome},
	{"\x1b[F", KeyEnd},
	{"\x1bOA", KeyUp},
	{"\x1bOB", KeyDown},
	{"\x1bOC", KeyRight},
	{"\x1bOD", KeyLeft},
	{"\x1bOH", KeyHome},
	{"\x1bOF", KeyEnd},
	{"\x1b[1~", KeyHome},
	{"\x1b[4~", KeyEnd},
	{"\x1b[7~", KeyHome},
	{"\x1b[8~", KeyEnd},
	{"\x1b[3~", KeyDelete},
}

var controls = map[byte]Key{
	0x01: KeyCtrlA,
	0x03: KeyCtrlC,
	0x04: KeyCtrlD,
	0x05: KeyCtrlE,
	0x08: KeyBackspace,
	0x09: KeyTab,
	0x0a: KeyEnter,
	0x0b: KeyCtrlK,
	0x0c: KeyCtrlL,
	0x0d: KeyEnter,
	0x15: KeyCtrlU,
	0x17: KeyCtrlW,
	0x7f: KeyBackspace,
}

// Decoder splits raw terminal input into key events. Incomplete escape
// sequences and UTF-8 characters at the end of a chunk are held until the
// next call.
type Decoder struct {
	pending []byte
}

// Decode appends the events in data to events and returns the result.
func (d *Decoder) Decode(events []Event, data []byte) []Event {
	buf := append(d.pending, data...)
	d.pending = nil

	for len(buf) > 0 {
		ev, n := decodeOne(buf)
		if n == 0 {
			d.pending = append([]byte(nil), buf...)
			break
		}
		if ev.Key != KeyNone {
			events = append(events, ev)
		}
		buf = buf[n:]
	}
	return events
}

// Flush turns a held lone escape into KeyEscape. Other partial input stays
// held.
func (d *Decoder) Flush(events []Event) []Event {
	if len(d.pending) == 1 && d.pending[0] == 0x1b {
		d.pending = nil
		events = append(events, Event{Key: KeyEscape})
	}
	return events
}

// decodeOne decodes the first event in buf. It returns n == 0 when buf
// holds only the start of an event.
func decodeOne(buf []byte) (Event, int) {
	b := buf[0]

	if b == 0x1b {
		if len(buf) == 1 {
			return Event{}, 0
		}
		for _, s := range sequences {
			if len(buf) >= len(s.seq) && string(buf[:len(s.seq)]) == s.seq {
				return Event{Key: s.key}, len(s.seq)
			}
		}
		if buf[1] == '[' || buf[1] == 'O' {
			// Unknown CSI or SS3 sequence: skip through its final byte.
			for i := 2; i < len(buf); i++ {
				if buf[i] >= 0x40 && buf[i] <= 0x7e {
					return Event{}, i + 1
				}
			}
			return Event{}, 0
		}
		return Event{Key: KeyEscape}, 1
	}

	if key, ok := controls[b]; ok {
		// Treat CR LF as a single enter.
		if b == 0x0d && len(buf) > 1 && buf[1] == 0x0a {
			return Event{Key: KeyEnter}, 2
		}
		return Event{Key: key}, 1
	}
	if b < 0x20 {
		return Event{}, 1
	}

	if b < utf8.RuneSelf {
		return Event{Key: KeyRune, Rune: rune(b)}, 1
	}
	if !utf8.FullRune(buf) {
		return Event{}, 0
	}
	r, size := utf8.DecodeRune(buf)
	if r == utf8.RuneError && size <= 1 {
		return Event{}, 1
	}
	return Event{Key: KeyRune, Rune: r}, size
}
