// Package sgf reads and writes the move logs carried in a record's
// content field. The protocol treats the field as opaque; everything
// in this pipeline writes SGF by convention, so the tooling that wants
// to look inside a game uses this package.
package sgf

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tenuki-go/tenuki/board"
)

// Color of the player making a move.
type Color int

const (
	Black Color = iota
	White
)

func (c Color) String() string {
	if c == Black {
		return "B"
	}
	return "W"
}

// Move is one move of a game: who played, and where. Point is a flat
// board index, or board.Pass.
type Move struct {
	Color Color
	Point int
}

// Meta is the game-level header information we read and write.
// Unknown root properties are kept verbatim in Extra so a
// parse-then-write cycle does not lose them.
type Meta struct {
	BoardSize int
	Komi      float64
	Result    string
	Black     string
	White     string
	Extra     map[string]string
}

// Write renders a single-variation SGF game tree. The CA property is
// always utf-8 on output.
func Write(meta Meta, moves []Move) string {
	size := meta.BoardSize
	if size == 0 {
		size = board.Default.Size
	}
	g := board.Geometry{Size: size}

	var sb strings.Builder
	sb.WriteString("(;GM[1]FF[4]CA[utf-8]")
	fmt.Fprintf(&sb, "SZ[%d]", size)
	if meta.Komi != 0 {
		fmt.Fprintf(&sb, "KM[%v]", meta.Komi)
	}
	if meta.Black != "" {
		fmt.Fprintf(&sb, "PB[%s]", escape(meta.Black))
	}
	if meta.White != "" {
		fmt.Fprintf(&sb, "PW[%s]", escape(meta.White))
	}
	if meta.Result != "" {
		fmt.Fprintf(&sb, "RE[%s]", escape(meta.Result))
	}
	for _, m := range moves {
		fmt.Fprintf(&sb, ";%s[%s]", m.Color, g.SGFPoint(m.Point))
	}
	sb.WriteString(")")
	return sb.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `]`, `\]`)
}

// unescape drops each backslash and keeps the character it quotes.
// FF[4] allows a backslash before any character, not just ] and \.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// Parse reads a single-variation SGF game. Properties it does not know
// land in Meta.Extra; anything structurally off (unclosed values,
// moves off the board) is an error. Records written by legacy tools
// declare CA[ISO-8859-1]; those are transcoded to UTF-8 before the
// string properties are read.
func Parse(data string) (Meta, []Move, error) {
	meta := Meta{BoardSize: board.Default.Size, Extra: map[string]string{}}

	// Peek at the declared charset first; the transcode has to happen
	// before any text property is interpreted.
	if ca, ok := peekProperty(data, "CA"); ok {
		switch strings.ToLower(ca) {
		case "utf-8", "utf8":
		case "iso-8859-1", "latin-1", "latin1":
			decoded, _, err := transform.String(charmap.ISO8859_1.NewDecoder(), data)
			if err != nil {
				return meta, nil, fmt.Errorf("transcoding sgf: %w", err)
			}
			data = decoded
		default:
			return meta, nil, fmt.Errorf("unhandled sgf charset %q", ca)
		}
	}

	props, err := tokenize(data)
	if err != nil {
		return meta, nil, err
	}

	var moves []Move
	g := board.Geometry{Size: meta.BoardSize}
	for _, p := range props {
		switch p.name {
		case "GM", "FF", "CA", "AP":
			// Header noise, checked or already handled.
		case "SZ":
			if _, err := fmt.Sscanf(p.value, "%d", &meta.BoardSize); err != nil {
				return meta, nil, fmt.Errorf("bad SZ property %q", p.value)
			}
			g = board.Geometry{Size: meta.BoardSize}
		case "KM":
			if _, err := fmt.Sscanf(p.value, "%f", &meta.Komi); err != nil {
				return meta, nil, fmt.Errorf("bad KM property %q", p.value)
			}
		case "PB":
			meta.Black = unescape(p.value)
		case "PW":
			meta.White = unescape(p.value)
		case "RE":
			meta.Result = unescape(p.value)
		case "B", "W":
			pt, err := g.ParseSGFPoint(p.value)
			if err != nil {
				return meta, nil, err
			}
			c := Black
			if p.name == "W" {
				c = White
			}
			moves = append(moves, Move{Color: c, Point: pt})
		default:
			meta.Extra[p.name] = unescape(p.value)
		}
	}
	return meta, moves, nil
}

type property struct {
	name  string
	value string
}

// tokenize flattens the main variation into a property list. Nested
// variations are not produced by this pipeline and are rejected.
func tokenize(data string) ([]property, error) {
	var props []property
	i := 0
	depth := 0
	for i < len(data) {
		switch c := data[i]; {
		case c == '(':
			depth++
			if depth > 1 {
				return nil, fmt.Errorf("sgf: branching variations not supported")
			}
			i++
		case c == ')' || c == ';' || c == ' ' || c == '\n' || c == '\r' || c == '\t':
			i++
		case c >= 'A' && c <= 'Z':
			start := i
			for i < len(data) && data[i] >= 'A' && data[i] <= 'Z' {
				i++
			}
			name := data[start:i]
			if i >= len(data) || data[i] != '[' {
				return nil, fmt.Errorf("sgf: property %s has no value", name)
			}
			// A property may have several bracketed values; keep the
			// first, skip the rest.
			first := true
			for i < len(data) && data[i] == '[' {
				val, next, err := bracketValue(data, i)
				if err != nil {
					return nil, err
				}
				if first {
					props = append(props, property{name: name, value: val})
					first = false
				}
				i = next
			}
		default:
			return nil, fmt.Errorf("sgf: unexpected byte %q at offset %d", c, i)
		}
	}
	if depth == 0 {
		return nil, fmt.Errorf("sgf: no game tree found")
	}
	return props, nil
}

func bracketValue(data string, open int) (string, int, error) {
	i := open + 1
	var sb strings.Builder
	for i < len(data) {
		switch data[i] {
		case '\\':
			if i+1 < len(data) {
				sb.WriteByte(data[i])
				sb.WriteByte(data[i+1])
				i += 2
				continue
			}
			return "", 0, fmt.Errorf("sgf: dangling escape at offset %d", i)
		case ']':
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(data[i])
			i++
		}
	}
	return "", 0, fmt.Errorf("sgf: unterminated value starting at offset %d", open)
}

// peekProperty scans the raw text for a property without a full parse.
func peekProperty(data, name string) (string, bool) {
	idx := 0
	for {
		j := strings.Index(data[idx:], name+"[")
		if j < 0 {
			return "", false
		}
		pos := idx + j
		// Must not be the tail of a longer identifier (e.g. the CA in
		// PCA[...]).
		if pos > 0 && data[pos-1] >= 'A' && data[pos-1] <= 'Z' {
			idx = pos + len(name)
			continue
		}
		end := strings.IndexByte(data[pos:], ']')
		if end < 0 {
			return "", false
		}
		return data[pos+len(name)+1 : pos+end], true
	}
}
