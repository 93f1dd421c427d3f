package domain

import (
	"fmt"
	"strconv"
)

// ColumnSentinel is the fixed leading digit of every column id, inherited
// from the 1-D model heritage of the column grid.
const ColumnSentinel = 2

// ColumnID identifies one atmospheric column at a fixed horizontal grid
// coordinate. It renders as a 3-digit string: the sentinel digit followed
// by the two grid digits, e.g. (1,2) -> "212".
type ColumnID struct {
	X int
	Y int
}

func (c ColumnID) Validate() error {
	if c.X < 0 || c.X > 9 {
		return fmt.Errorf("column x index %d outside 0..9", c.X)
	}
	if c.Y < 0 || c.Y > 9 {
		return fmt.Errorf("column y index %d outside 0..9", c.Y)
	}
	return nil
}

func (c ColumnID) String() string {
	return fmt.Sprintf("%d%d%d", ColumnSentinel, c.X, c.Y)
}

// Triple returns the standard-form representation (sentinel, x, y) agreed
// with the sibling modules.
func (c ColumnID) Triple() [3]int {
	return [3]int{ColumnSentinel, c.X, c.Y}
}

// ParseColumnID parses the 3-digit column rendering produced by String.
func ParseColumnID(s string) (ColumnID, error) {
	if len(s) != 3 {
		return ColumnID{}, fmt.Errorf("column id %q must be 3 digits", s)
	}
	lead, err := strconv.Atoi(s[:1])
	if err != nil || lead != ColumnSentinel {
		return ColumnID{}, fmt.Errorf("column id %q must start with sentinel digit %d", s, ColumnSentinel)
	}
	x, err := strconv.Atoi(s[1:2])
	if err != nil {
		return ColumnID{}, fmt.Errorf("column id %q has non-digit x index", s)
	}
	y, err := strconv.Atoi(s[2:3])
	if err != nil {
		return ColumnID{}, fmt.Errorf("column id %q has non-digit y index", s)
	}
	col := ColumnID{X: x, Y: y}
	if err := col.Validate(); err != nil {
		return ColumnID{}, err
	}
	return col, nil
}

// GridShape describes the horizontal extent of the column grid.
type GridShape struct {
	NX int
	NY int
}

func (g GridShape) Validate() error {
	if g.NX < 1 || g.NX > 10 {
		return fmt.Errorf("grid x extent %d outside 1..10", g.NX)
	}
	if g.NY < 1 || g.NY > 10 {
		return fmt.Errorf("grid y extent %d outside 1..10", g.NY)
	}
	return nil
}

// Columns enumerates every column of the grid in row-major order. The
// ordering is stable across runs for the same grid topology.
func (g GridShape) Columns() []ColumnID {
	out := make([]ColumnID, 0, g.NX*g.NY)
	for x := 0; x < g.NX; x++ {
		for y := 0; y < g.NY; y++ {
			out = append(out, ColumnID{X: x, Y: y})
		}
	}
	return out
}

func (g GridShape) Contains(c ColumnID) bool {
	return c.X >= 0 && c.X < g.NX && c.Y >= 0 && c.Y < g.NY
}

// Neighbors returns the physically adjacent columns of c clipped to the
// grid: at most 4 for a central column, 3 at a side, 2 at a corner.
func (g GridShape) Neighbors(c ColumnID) []ColumnID {
	candidates := []ColumnID{
		{X: c.X + 1, Y: c.Y},
		{X: c.X - 1, Y: c.Y},
		{X: c.X, Y: c.Y - 1},
		{X: c.X, Y: c.Y + 1},
	}
	out := make([]ColumnID, 0, 4)
	for _, n := range candidates {
		if g.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}
