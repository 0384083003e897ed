package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/tenuki-go/tenuki/mcts"
	"github.com/tenuki-go/tenuki/selfplay"
)

func testRecord(t *testing.T, seq int) selfplay.Record {
	t.Helper()
	return selfplay.Record{
		Request: selfplay.Request{
			Assignment: selfplay.Assignment{
				BlackVer:   12,
				WhiteVer:   selfplay.UnsetVersion,
				SearchOpts: mcts.DefaultOptions(),
			},
			Control: selfplay.DefaultClientControl(),
		},
		Result: selfplay.Result{
			NumMoves:    2,
			Reward:      -1,
			UsingModels: []int64{12},
			MoveLog:     "(;GM[1]FF[4];B[dd];W[])",
		},
		Timestamp: 1700000100,
		ThreadID:  1,
		Seq:       seq,
		Priority:  1,
	}
}

func TestWriteReadBatchFile(t *testing.T) {
	is := is.New(t)
	for _, compress := range []bool{false, true} {
		s, err := NewFileSink(t.TempDir(), compress)
		is.NoErr(err)
		records := []selfplay.Record{testRecord(t, 0), testRecord(t, 1)}
		path, err := s.WriteBatch("worker-a", 7, records)
		is.NoErr(err)
		if compress {
			is.True(strings.HasSuffix(path, ".json.zst"))
		} else {
			is.True(strings.HasSuffix(path, ".json"))
		}

		store, err := ReadBatchFile(path)
		is.NoErr(err)
		is.Equal(store.Records(), records)
		// No tmp files left behind.
		entries, err := os.ReadDir(filepath.Dir(path))
		is.NoErr(err)
		is.Equal(len(entries), 1)
	}
}

func TestWriteReadStoreFile(t *testing.T) {
	is := is.New(t)
	s, err := NewFileSink(t.TempDir(), true)
	is.NoErr(err)

	store := selfplay.NewStore("worker-b")
	store.AddRecord(testRecord(t, 0))
	store.UpdateThreadState(selfplay.ThreadState{ThreadID: 0, Seq: 1, Black: 12, White: -1})

	path, err := s.WriteStore(store, 1)
	is.NoErr(err)

	back, err := ReadBatchFile(path)
	is.NoErr(err)
	is.Equal(back.Identity(), "worker-b")
	is.Equal(back.Records(), store.Records())
	is.Equal(back.ThreadStates(), store.ThreadStates())
}

func TestReadBatchFileCorruptElements(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	good, err := selfplay.EncodeBatch([]selfplay.Record{testRecord(t, 0)})
	is.NoErr(err)
	// Splice a malformed element into the array by hand.
	data := strings.TrimSuffix(string(good), "]") + `,{"seq": "oops"}]`
	path := filepath.Join(dir, "mixed.json")
	is.NoErr(os.WriteFile(path, []byte(data), 0644))

	store, err := ReadBatchFile(path)
	is.NoErr(err)
	is.Equal(store.Len(), 1)
}

func TestReadBatchFileErrors(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	_, err := ReadBatchFile(filepath.Join(dir, "missing.json"))
	is.True(err != nil)

	path := filepath.Join(dir, "bad.json")
	is.NoErr(os.WriteFile(path, []byte("42"), 0644))
	_, err = ReadBatchFile(path)
	is.True(err != nil)

	is.NoErr(os.WriteFile(path, []byte("   "), 0644))
	_, err = ReadBatchFile(path)
	is.True(err != nil)
}
