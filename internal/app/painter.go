package app

import (
	"bytes"
	"strconv"

	"github.com/dshills/stormline/internal/renderer/cursor"
	"github.com/dshills/stormline/internal/renderer/layout"
)

// painter repaints the current frame in place below the shell output. The
// frame origin is the row where the prompt starts; row counts are relative
// to it.
type painter struct {
	// row is the frame row the terminal cursor is on.
	row int
	buf bytes.Buffer
}

// full repaints the whole frame. content must already use CR LF line
// endings. end is where content leaves the cursor; cur is where the
// editing cursor belongs.
func (p *painter) full(hide, content []byte, end, cur layout.Position) []byte {
	p.buf.Reset()
	p.buf.Write(hide)
	p.moveRows(-p.row)
	p.buf.WriteString("\r\x1b[J")
	p.buf.Write(content)
	p.place(content, end, cur)
	return p.buf.Bytes()
}

// tail repaints from the start of frame row from to the end of the frame.
func (p *painter) tail(hide, content []byte, from int, end, cur layout.Position) []byte {
	p.buf.Reset()
	p.buf.Write(hide)
	p.moveRows(from - p.row)
	p.buf.WriteString("\r\x1b[J")
	p.buf.Write(content)
	p.place(content, end, cur)
	return p.buf.Bytes()
}

// finish moves below the frame so that the next frame starts on a fresh
// row. end is the frame's last position.
func (p *painter) finish(end layout.Position) []byte {
	p.buf.Reset()
	p.moveRows(end.Row - p.row)
	p.buf.WriteString("\r\n")
	p.buf.WriteString(cursor.Show())
	p.row = 0
	return p.buf.Bytes()
}

// cursorTo moves the visible cursor to cur without repainting.
func (p *painter) cursorTo(cur layout.Position) []byte {
	p.buf.Reset()
	p.moveRows(cur.Row - p.row)
	p.column(cur.Col)
	return p.buf.Bytes()
}

// place moves from the end of the written content to cur and shows the
// cursor.
func (p *painter) place(content []byte, end, cur layout.Position) {
	// A row filled to the last column leaves the terminal cursor pending
	// on that row; force the wrap so rows match the walk.
	if end.Col == 0 && end.Row > 0 && len(content) > 0 && content[len(content)-1] != '\n' {
		p.buf.WriteString(" \r")
	}
	p.row = end.Row
	p.moveRows(cur.Row - end.Row)
	p.column(cur.Col)
	p.buf.WriteString(cursor.Show())
}

func (p *painter) column(col int) {
	p.buf.WriteByte('\r')
	if col > 0 {
		p.buf.WriteString("\x1b[")
		p.buf.WriteString(strconv.Itoa(col))
		p.buf.WriteByte('C')
	}
}

func (p *painter) moveRows(n int) {
	switch {
	case n < 0:
		p.buf.WriteString("\x1b[")
		p.buf.WriteString(strconv.Itoa(-n))
		p.buf.WriteByte('A')
	case n > 0:
		p.buf.WriteString("\x1b[")
		p.buf.WriteString(strconv.Itoa(n))
		p.buf.WriteByte('B')
	}
	p.row += n
}

// crlf translates bare line feeds to CR LF.
func crlf(b []byte) []byte {
	if bytes.IndexByte(b, '\n') < 0 {
		return b
	}
	out := make([]byte, 0, len(b)+bytes.Count(b, []byte{'\n'}))
	for i, c := range b {
		if c == '\n' && (i == 0 || b[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}
