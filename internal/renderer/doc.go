// Package renderer turns an editor buffer into the bytes written to the
// terminal on each keystroke.
//
// The Controller decides between a full redraw and a partial redraw driven
// by the dirty tracker:
//
//	┌─────────────────────────────────────────┐
//	│           Controller (Render)           │
//	├─────────────────────────────────────────┤
//	│  Dirty Tracker │ Render Cache │ Metrics │
//	│  Buffer Render │ Cursor Codes │ Frames  │
//	├─────────────────────────────────────────┤
//	│        Pool (buffers) │ Display         │
//	└─────────────────────────────────────────┘
//
// A full redraw copies the entire buffer. A partial redraw copies a context
// window around each dirty offset, merged and in ascending order, so it is
// always a subsequence of the full output. A partial render that would not
// fit the output capacity falls back to a full render instead of truncating.
//
// Usage:
//
//	c, err := renderer.New(renderer.NewBytePool(), term, renderer.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.MarkDirty(offset)
//	out, err := c.Render(frame, cursor.Cursor{Line: row, VisualColumn: col})
//	if err != nil {
//		return err
//	}
//	defer out.Release()
//	term.Write(out.Content)
//	term.Write(out.Cursor)
package renderer
