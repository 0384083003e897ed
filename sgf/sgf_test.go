package sgf

import (
	"strings"
	"testing"

	"github.com/matryer/is"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tenuki-go/tenuki/board"
)

func TestWriteParseRoundTrip(t *testing.T) {
	is := is.New(t)
	meta := Meta{
		BoardSize: 19,
		Komi:      7.5,
		Result:    "B+3.5",
		Black:     "model-40",
		White:     "model-39",
	}
	moves := []Move{
		{Black, board.Default.Index(3, 3)},
		{White, board.Default.Index(15, 15)},
		{Black, board.Pass},
		{White, board.Pass},
	}
	out := Write(meta, moves)
	is.True(strings.HasPrefix(out, "(;GM[1]FF[4]"))

	gotMeta, gotMoves, err := Parse(out)
	is.NoErr(err)
	is.Equal(gotMeta.BoardSize, 19)
	is.Equal(gotMeta.Komi, 7.5)
	is.Equal(gotMeta.Result, "B+3.5")
	is.Equal(gotMeta.Black, "model-40")
	is.Equal(gotMeta.White, "model-39")
	is.Equal(gotMoves, moves)
}

func TestParseSmallBoard(t *testing.T) {
	is := is.New(t)
	meta, moves, err := Parse("(;GM[1]FF[4]SZ[9];B[ee];W[cc];B[tt])")
	is.NoErr(err)
	is.Equal(meta.BoardSize, 9)
	is.Equal(len(moves), 3)
	is.Equal(moves[0].Point, board.Geometry{Size: 9}.Index(4, 4))
	// legacy pass encoding
	is.Equal(moves[2].Point, board.Pass)
}

func TestParseUnknownPropertiesKept(t *testing.T) {
	is := is.New(t)
	meta, _, err := Parse("(;GM[1]FF[4]SZ[19]HA[2]GN[epoch-12 game];B[dd])")
	is.NoErr(err)
	is.Equal(meta.Extra["HA"], "2")
	is.Equal(meta.Extra["GN"], "epoch-12 game")
}

func TestParseEscapedValues(t *testing.T) {
	is := is.New(t)
	meta, _, err := Parse(`(;GM[1]FF[4]SZ[19]RE[B+R \[resign\]]PB[back\\slash]PW[a\nyone];B[dd])`)
	is.NoErr(err)
	is.Equal(meta.Result, "B+R [resign]")
	is.Equal(meta.Black, `back\slash`)
	// A backslash quotes whatever follows, not just ] and \.
	is.Equal(meta.White, "anyone")
}

func TestParseLatin1Transcoding(t *testing.T) {
	is := is.New(t)
	utf8Game := "(;GM[1]FF[4]CA[ISO-8859-1]SZ[19]PB[José];B[dd])"
	// Re-encode the file the way a legacy tool would have written it.
	latin1, _, err := transform.String(charmap.ISO8859_1.NewEncoder(), utf8Game)
	is.NoErr(err)
	is.True(!strings.Contains(latin1, "José"))

	meta, moves, err := Parse(latin1)
	is.NoErr(err)
	is.Equal(meta.Black, "José")
	is.Equal(len(moves), 1)
}

func TestParseErrors(t *testing.T) {
	is := is.New(t)
	for _, bad := range []string{
		"",
		"not sgf at all",
		"(;GM[1]FF[4]SZ[19];B[zz])",
		"(;GM[1]FF[4]SZ[19];B[dd)",
		"(;GM[1]FF[4]SZ[19](;B[dd])(;B[ee]))",
		"(;GM[1]FF[4]CA[shift-jis];B[dd])",
	} {
		_, _, err := Parse(bad)
		is.True(err != nil)
	}
}
