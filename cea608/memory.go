package cea608

import (
	"fmt"
	"strings"
)

// Caption grid dimensions.
const (
	Rows    = 15
	Columns = 32
)

// Grid is one page of caption memory. A zero rune is an empty cell.
type Grid [Rows][Columns]rune

// Buffer selects one of the two grids of a Memory.
type Buffer int

// Memory buffers.
const (
	Displayed Buffer = iota
	NonDisplayed
)

func (b Buffer) String() string {
	if b == Displayed {
		return "displayed"
	}
	return "non-displayed"
}

// Memory is a double-buffered 15x32 caption grid with a cursor. Rows and
// columns are 1-based. Which grid is displayed is tracked by index, so a
// swap never copies cells.
type Memory struct {
	grids     [2]Grid
	displayed int
	row       int
	column    int
}

// NewMemory returns an empty Memory with the cursor at row 1, column 1.
func NewMemory() *Memory {
	return &Memory{row: 1, column: 1}
}

func (m *Memory) grid(b Buffer) *Grid {
	if b == Displayed {
		return &m.grids[m.displayed]
	}
	return &m.grids[1-m.displayed]
}

// Cursor returns the current write position.
func (m *Memory) Cursor() (row, column int) {
	return m.row, m.column
}

// MoveCursor sets the write position.
func (m *Memory) MoveCursor(row, column int) error {
	if row < 1 || row > Rows || column < 1 || column > Columns {
		return fmt.Errorf("%w: row %d column %d", ErrCursorRange, row, column)
	}
	m.row, m.column = row, column
	return nil
}

// Advance moves the cursor n columns right, stopping at the last column.
func (m *Memory) Advance(n int) {
	m.column = min(m.column+n, Columns)
}

// Write stores r at the cursor in the given buffer and advances the
// cursor by one column. The cursor never wraps to the next row.
func (m *Memory) Write(target Buffer, r rune) {
	m.grid(target)[m.row-1][m.column-1] = r
	m.Advance(1)
}

// At returns the rune stored at row, column of the given buffer.
func (m *Memory) At(target Buffer, row, column int) rune {
	return m.grid(target)[row-1][column-1]
}

// Erase clears the given buffer in place.
func (m *Memory) Erase(target Buffer) {
	*m.grid(target) = Grid{}
}

// Swap exchanges the displayed and non-displayed grids.
func (m *Memory) Swap() {
	m.displayed = 1 - m.displayed
}

// Lines returns the displayed grid as 15 strings of 32 runes each, with
// empty cells rendered as spaces.
func (m *Memory) Lines() []string {
	g := m.grid(Displayed)
	lines := make([]string, Rows)
	var sb strings.Builder
	for i := range g {
		sb.Reset()
		for _, r := range g[i] {
			if r == 0 {
				r = ' '
			}
			sb.WriteRune(r)
		}
		lines[i] = sb.String()
	}
	return lines
}

// Render returns the displayed grid as 15 newline-joined lines of 32
// columns. The non-displayed grid is never read.
func (m *Memory) Render() string {
	return strings.Join(m.Lines(), "\n")
}

// Blank reports whether the displayed grid has no stored characters.
func (m *Memory) Blank() bool {
	return *m.grid(Displayed) == Grid{}
}
