package compose

import (
	"github.com/dshills/stormline/internal/compose/continuation"
	"github.com/dshills/stormline/internal/renderer/core"
	"github.com/dshills/stormline/internal/renderer/layout"
)

// lineSpan is one line of a command as a byte range, line feed excluded.
type lineSpan struct {
	start, end int
}

// splitLines splits command at line feeds. A trailing line feed yields a
// final empty line.
func splitLines(command string) []lineSpan {
	spans := make([]lineSpan, 0, 4)
	start := 0
	for i := 0; i < len(command); i++ {
		if command[i] == '\n' {
			spans = append(spans, lineSpan{start: start, end: i})
			start = i + 1
		}
	}
	return append(spans, lineSpan{start: start, end: len(command)})
}

// composeMultiline renders every command line behind its prefix: the
// primary prompt for line 0 and a continuation prompt for the rest.
func (e *Engine) composeMultiline(prompt, command string) (Frame, error) {
	spans := splitLines(command)

	lines := make([]string, len(spans))
	offsets := make([]int, len(spans))
	for i, s := range spans {
		lines[i] = command[s.start:s.end]
		offsets[i] = s.start
	}

	prefixes := make([]string, len(spans))
	prefixes[0] = prompt
	for i := 1; i < len(spans); i++ {
		p, err := e.provider.PromptForLine(i, command)
		if err != nil || p == "" {
			e.stats.ContinuationFallbacks++
			e.log.Debug("continuation prompt for line %d unavailable (%v), using %q", i, err, continuation.DefaultPrompt)
			p = continuation.DefaultPrompt
		}
		prefixes[i] = p
	}

	e.screen.SetContent(lines)
	for i, p := range prefixes {
		if err := e.screen.SetLinePrefix(i, p); err != nil {
			return Frame{}, core.Errorf("compose", core.ErrLayerNotReady, "prefix for line %d: %v", i, err)
		}
	}
	out, err := e.screen.RenderMultilineWithPrefixes(0, len(lines))
	if err != nil {
		return Frame{}, core.Errorf("compose", core.ErrLayerNotReady, "multiline render: %v", err)
	}

	a := e.analyze(prompt, e.cfg.Measure)
	e.stats.AnalysisRuns++
	e.stats.MultilineCompositions++

	p := Positioning{
		SameLine:        true,
		StartLine:       a.LineCount - 1,
		StartColumn:     a.LastLineWidth,
		TotalLines:      a.LineCount - 1 + len(lines),
		NeedsReposition: true,
	}
	p.TotalWidth = a.MaxLineWidth
	for i, line := range lines {
		indent := a.LastLineWidth
		if i > 0 {
			indent = layout.VisibleWidth(layout.LastLine(prefixes[i]), e.cfg.Measure)
		}
		p.TotalWidth = max(p.TotalWidth, indent+layout.VisibleWidth(line, e.cfg.Measure))
	}

	return Frame{
		Bytes:        out,
		Analysis:     a,
		Positioning:  p,
		Strategy:     Multiline,
		LinePrefixes: prefixes,
		LineOffsets:  offsets,
	}, nil
}
