package layout

// DefaultTabWidth is the terminal's hardware tab stop interval.
const DefaultTabWidth = 8

// TabExpander provides tab stop arithmetic.
type TabExpander struct {
	tabWidth int
}

// NewTabExpander creates a tab expander with the given tab width.
// Widths less than 1 use DefaultTabWidth.
func NewTabExpander(tabWidth int) *TabExpander {
	if tabWidth < 1 {
		tabWidth = DefaultTabWidth
	}
	return &TabExpander{tabWidth: tabWidth}
}

// NextTabStop returns the next tab stop column after the given column.
func (t *TabExpander) NextTabStop(col int) int {
	return col + t.TabStopOffset(col)
}

// TabStopOffset returns how many columns a tab at the given column advances.
func (t *TabExpander) TabStopOffset(col int) int {
	return t.tabWidth - (col % t.tabWidth)
}
