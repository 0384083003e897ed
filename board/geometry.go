// Package board parameterizes the board geometry that the rest of the
// pipeline depends on: the number of points, the length of a per-move
// policy vector, and conversions between the coordinate conventions the
// various record formats use.
package board

import (
	"fmt"
	"strings"
)

// Pass is the policy-vector slot index reserved for the pass move. It is
// always the last slot, after the Size*Size board points.
const Pass = -1

// Geometry describes a square board of a given size. The policy vector
// produced by search has one slot per board point plus a trailing pass
// slot, so its length follows the geometry and must never be hardcoded
// by consumers.
type Geometry struct {
	Size int
}

// Default is the tournament board.
var Default = Geometry{Size: 19}

func (g Geometry) NumPoints() int {
	return g.Size * g.Size
}

// PolicyLen is the length of a quantized policy vector for this board:
// one slot per point, plus the pass slot.
func (g Geometry) PolicyLen() int {
	return g.NumPoints() + 1
}

// PassIndex is the slot a pass occupies in a policy vector.
func (g Geometry) PassIndex() int {
	return g.NumPoints()
}

// Index converts zero-based column/row to a flat point index.
func (g Geometry) Index(col, row int) int {
	return row*g.Size + col
}

// Coords is the inverse of Index.
func (g Geometry) Coords(idx int) (col, row int) {
	return idx % g.Size, idx / g.Size
}

// Valid reports whether idx names a point on the board or the pass slot.
func (g Geometry) Valid(idx int) bool {
	return (idx >= 0 && idx < g.NumPoints()) || idx == Pass
}

// SGFPoint renders a point index as a two-letter SGF coordinate. A pass
// is the empty string, per the FF[4] convention.
func (g Geometry) SGFPoint(idx int) string {
	if idx == Pass || idx == g.PassIndex() {
		return ""
	}
	col, row := g.Coords(idx)
	return string([]byte{byte('a' + col), byte('a' + row)})
}

// ParseSGFPoint parses a two-letter SGF coordinate. The empty string
// (and the off-board "tt" that older 19x19 records use) is a pass.
func (g Geometry) ParseSGFPoint(s string) (int, error) {
	if s == "" {
		return Pass, nil
	}
	if s == "tt" && g.Size <= 19 {
		return Pass, nil
	}
	if len(s) != 2 {
		return 0, fmt.Errorf("sgf point %q: want two letters", s)
	}
	col := int(s[0] - 'a')
	row := int(s[1] - 'a')
	if col < 0 || col >= g.Size || row < 0 || row >= g.Size {
		return 0, fmt.Errorf("sgf point %q: off a %dx%d board", s, g.Size, g.Size)
	}
	return g.Index(col, row), nil
}

// gtpColumns skips "I", per GTP convention.
const gtpColumns = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// GTPPoint renders a point index as a GTP vertex ("D4", "PASS").
func (g Geometry) GTPPoint(idx int) string {
	if idx == Pass || idx == g.PassIndex() {
		return "PASS"
	}
	col, row := g.Coords(idx)
	return fmt.Sprintf("%c%d", gtpColumns[col], g.Size-row)
}

// ParseGTPPoint parses a GTP vertex.
func (g Geometry) ParseGTPPoint(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "PASS" {
		return Pass, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("gtp vertex %q: too short", s)
	}
	col := strings.IndexByte(gtpColumns, s[0])
	if col < 0 || col >= g.Size {
		return 0, fmt.Errorf("gtp vertex %q: bad column", s)
	}
	var row int
	if _, err := fmt.Sscanf(s[1:], "%d", &row); err != nil {
		return 0, fmt.Errorf("gtp vertex %q: bad row: %w", s, err)
	}
	if row < 1 || row > g.Size {
		return 0, fmt.Errorf("gtp vertex %q: row off board", s)
	}
	return g.Index(col, g.Size-row), nil
}
