package cea608

import (
	"errors"
	"strings"
	"testing"
)

var blankLine = strings.Repeat(" ", Columns)

func blankRender() string {
	lines := make([]string, Rows)
	for i := range lines {
		lines[i] = blankLine
	}
	return strings.Join(lines, "\n")
}

func TestMemoryRenderBlank(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	got := m.Render()
	if got != blankRender() {
		t.Fatalf("blank render mismatch:\n%q", got)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != Rows {
		t.Fatalf("lines = %d, want %d", len(lines), Rows)
	}
	for i, l := range lines {
		if n := len([]rune(l)); n != Columns {
			t.Errorf("line %d width = %d, want %d", i, n, Columns)
		}
	}
	if !m.Blank() {
		t.Error("Blank() = false on new memory")
	}
}

func TestMemoryWriteClampsAtLastColumn(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	if err := m.MoveCursor(3, 30); err != nil {
		t.Fatal(err)
	}
	for _, r := range "ABCDE" {
		m.Write(Displayed, r)
	}
	row, col := m.Cursor()
	if row != 3 || col != Columns {
		t.Errorf("cursor = (%d,%d), want (3,%d)", row, col, Columns)
	}
	if got := m.At(Displayed, 3, 30); got != 'A' {
		t.Errorf("(3,30) = %q, want 'A'", got)
	}
	if got := m.At(Displayed, 3, 31); got != 'B' {
		t.Errorf("(3,31) = %q, want 'B'", got)
	}
	// Writes past the edge overwrite the last column.
	if got := m.At(Displayed, 3, 32); got != 'E' {
		t.Errorf("(3,32) = %q, want 'E'", got)
	}
	if got := m.At(Displayed, 4, 1); got != 0 {
		t.Errorf("(4,1) = %q, want empty (no wrap)", got)
	}
}

func TestMemorySwap(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Write(NonDisplayed, 'X')
	if !m.Blank() {
		t.Fatal("non-displayed write leaked into render")
	}

	m.Swap()
	if got := m.Lines()[0][:1]; got != "X" {
		t.Errorf("after swap line 0 starts %q, want X", got)
	}
	if got := m.At(NonDisplayed, 1, 1); got != 0 {
		t.Errorf("non-displayed after swap = %q, want empty", got)
	}

	m.Swap()
	if !m.Blank() {
		t.Error("second swap did not restore the original displayed grid")
	}
}

func TestMemoryEraseTargetOnly(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Write(Displayed, 'D')
	_ = m.MoveCursor(1, 1)
	m.Write(NonDisplayed, 'N')

	m.Erase(Displayed)
	if got := m.Render(); got != blankRender() {
		t.Errorf("render after erase displayed not blank:\n%s", got)
	}
	if got := m.At(NonDisplayed, 1, 1); got != 'N' {
		t.Errorf("non-displayed = %q, want 'N'", got)
	}

	m.Erase(NonDisplayed)
	if got := m.At(NonDisplayed, 1, 1); got != 0 {
		t.Errorf("non-displayed after erase = %q, want empty", got)
	}
}

func TestMemoryMoveCursorRange(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	for _, c := range [][2]int{{0, 1}, {16, 1}, {1, 0}, {1, 33}} {
		if err := m.MoveCursor(c[0], c[1]); !errors.Is(err, ErrCursorRange) {
			t.Errorf("MoveCursor(%d,%d) err = %v, want ErrCursorRange", c[0], c[1], err)
		}
	}
	if row, col := m.Cursor(); row != 1 || col != 1 {
		t.Errorf("cursor moved by rejected call: (%d,%d)", row, col)
	}
	if err := m.MoveCursor(Rows, Columns); err != nil {
		t.Errorf("MoveCursor(15,32): %v", err)
	}
}

func TestMemoryAdvance(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Advance(3)
	if _, col := m.Cursor(); col != 4 {
		t.Errorf("column = %d, want 4", col)
	}
	m.Advance(100)
	if _, col := m.Cursor(); col != Columns {
		t.Errorf("column = %d, want %d", col, Columns)
	}
}
