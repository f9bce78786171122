package compose

// Frame is a composed prompt and command ready for terminal output.
type Frame struct {
	// Bytes is the frame content. The caller owns it.
	Bytes []byte

	Analysis    PromptAnalysis
	Positioning Positioning

	// Strategy is the concrete strategy used for the layout.
	Strategy Strategy

	// LinePrefixes holds the prefix of every command line on the
	// multi-line path, the primary prompt first. Nil otherwise.
	LinePrefixes []string

	// LineOffsets holds the byte offset in the command where each line
	// starts, on the multi-line path. Nil otherwise.
	LineOffsets []int

	// Cached is set when the frame was served from the composition cache.
	Cached bool
}

// String returns the frame content.
func (f *Frame) String() string {
	return string(f.Bytes)
}

// Len returns the frame length in bytes.
func (f *Frame) Len() int {
	return len(f.Bytes)
}

// clone returns a deep copy so callers never alias cached bytes.
func (f Frame) clone() *Frame {
	out := f
	out.Bytes = append([]byte(nil), f.Bytes...)
	if f.LinePrefixes != nil {
		out.LinePrefixes = append([]string(nil), f.LinePrefixes...)
	}
	if f.LineOffsets != nil {
		out.LineOffsets = append([]int(nil), f.LineOffsets...)
	}
	return &out
}
