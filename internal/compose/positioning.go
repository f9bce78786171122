package compose

// intelligentWrapNum/Den is the fraction of the terminal width a prompt's
// last line may fill before the command is moved to its own line.
const (
	intelligentWrapNum = 2
	intelligentWrapDen = 3
)

// Positioning says where the command starts relative to the prompt.
//
// SameLine implies StartLine == LineCount-1 of the prompt analysis.
type Positioning struct {
	// SameLine is set when the command starts on the prompt's last line.
	SameLine bool

	// StartLine and StartColumn are the zero-based frame row and screen
	// column of the command's first byte.
	StartLine   int
	StartColumn int

	// TotalLines and TotalWidth are the frame's size.
	TotalLines int
	TotalWidth int

	// NeedsReposition is set when the cursor has to leave the first row.
	NeedsReposition bool
}

// computePositioning places a command of visible width commandWidth after
// the analysed prompt.
func computePositioning(a PromptAnalysis, commandWidth, termWidth int, intelligent bool) Positioning {
	p := Positioning{SameLine: true}

	if intelligent && termWidth > 0 &&
		a.LastLineWidth*intelligentWrapDen > termWidth*intelligentWrapNum {
		p.SameLine = false
	}

	if p.SameLine {
		p.StartLine = a.LineCount - 1
		p.StartColumn = a.LastLineWidth
		if needsSpace(a) {
			p.StartColumn++
		}
	} else {
		p.StartLine = a.LineCount
		p.StartColumn = 0
	}

	finish(&p, a, commandWidth, termWidth)
	return p
}

// placeBelow moves the command to the line under the prompt, or keeps it
// at column 0 of the prompt's empty last line when the prompt already ends
// with a line break.
func placeBelow(a PromptAnalysis, commandWidth, termWidth int) Positioning {
	p := Positioning{}
	if a.EndsWithNewline {
		p.SameLine = true
		p.StartLine = a.LineCount - 1
	} else {
		p.StartLine = a.LineCount
	}
	finish(&p, a, commandWidth, termWidth)
	return p
}

// needsSpace reports whether a space is injected between a same-line
// prompt and the command.
func needsSpace(a PromptAnalysis) bool {
	return !a.TrailingSpace && !a.EndsWithNewline
}

func finish(p *Positioning, a PromptAnalysis, commandWidth, termWidth int) {
	end := p.StartColumn + commandWidth
	p.TotalWidth = max(a.MaxLineWidth, end)
	p.TotalLines = p.StartLine + 1
	if termWidth > 0 && end > 0 {
		p.TotalLines += (end - 1) / termWidth
	}
	p.NeedsReposition = p.StartLine > 0 || p.TotalLines > 1
}
