package selfplay

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"
)

func TestStoreAddClearEmpty(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	s := NewStore("producer-1")
	is.True(s.IsEmpty())

	for i := 0; i < 4; i++ {
		s.AddRecord(testRecord(0, i))
	}
	s.UpdateThreadState(ThreadState{ThreadID: 0, Seq: 4})
	s.UpdateThreadState(ThreadState{ThreadID: 1, Seq: 2})
	is.True(!s.IsEmpty())
	is.Equal(s.Len(), 4)
	is.Equal(len(s.ThreadStates()), 2)

	// Checkpoints alone do not make a store non-empty.
	s.Clear()
	s.UpdateThreadState(ThreadState{ThreadID: 0, Seq: 5})
	is.True(s.IsEmpty())

	s.Clear()
	is.Equal(s.Len(), 0)
	is.Equal(len(s.ThreadStates()), 0)
	is.True(s.IsEmpty())
}

func TestStoreDrainRequeue(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	s := NewStore("p")
	for i := 0; i < 3; i++ {
		s.AddRecord(testRecord(0, i))
	}
	s.UpdateThreadState(ThreadState{ThreadID: 0, Seq: 3})

	records, states := s.Drain()
	is.Equal(len(records), 3)
	is.Equal(states[0].Seq, 3)

	// The drain takes the records but leaves the checkpoints, which
	// still describe where each thread is.
	is.True(s.IsEmpty())
	is.Equal(len(s.ThreadStates()), 1)

	// The returned checkpoint map is a snapshot, detached from the
	// store's own table.
	s.UpdateThreadState(ThreadState{ThreadID: 0, Seq: 4})
	is.Equal(states[0].Seq, 3)

	// Requeued records land ahead of anything added since the drain.
	s.AddRecord(testRecord(0, 3))
	s.Requeue(records)
	all := s.Records()
	is.Equal(len(all), 4)
	for i, rec := range all {
		is.Equal(rec.Seq, i)
	}
}

func TestStoreStateLastWriteWins(t *testing.T) {
	is := is.New(t)
	s := NewStore("p")
	s.UpdateThreadState(ThreadState{ThreadID: 3, Seq: 1, MoveIdx: 10})
	s.UpdateThreadState(ThreadState{ThreadID: 3, Seq: 2, MoveIdx: 40})
	states := s.ThreadStates()
	is.Equal(len(states), 1)
	is.Equal(states[3].Seq, 2)
	is.Equal(states[3].MoveIdx, 40)
}

func TestRecordRangeSnapshot(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	s := NewStore("p")
	for i := 0; i < 4; i++ {
		s.AddRecord(testRecord(0, i))
	}
	// Dumping [1,3) yields exactly r1 and r2, in order.
	sub := s.RecordRange(1, 3)
	is.Equal(len(sub), 2)
	is.Equal(sub[0].Seq, 1)
	is.Equal(sub[1].Seq, 2)

	data, err := EncodeBatch(sub)
	is.NoErr(err)
	back, err := DecodeBatch(data)
	is.NoErr(err)
	is.Equal(back, sub)

	// Bounds are clamped, not a panic.
	is.Equal(len(s.RecordRange(-5, 99)), 4)
	is.Equal(len(s.RecordRange(3, 1)), 0)
}

func TestStoreRoundTrip(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	s := NewStore("producer-xyz")
	s.AddRecord(testRecord(0, 0))
	s.AddRecord(testRecord(1, 0))
	s.UpdateThreadState(ThreadState{ThreadID: 0, Seq: 1, Black: 40, White: -1})
	s.UpdateThreadState(ThreadState{ThreadID: 1, Seq: 1, Black: 40, White: -1})

	data, err := s.EncodeJSON()
	is.NoErr(err)
	back, err := DecodeStore(data)
	is.NoErr(err)
	is.Equal(back.Identity(), "producer-xyz")
	is.Equal(back.Records(), s.Records())
	is.Equal(back.ThreadStates(), s.ThreadStates())
}

func TestStoreEncodeOmitsEmptyArrays(t *testing.T) {
	is := is.New(t)
	s := NewStore("p")
	data, err := s.EncodeJSON()
	is.NoErr(err)
	is.True(!strings.Contains(string(data), "states"))
	is.True(!strings.Contains(string(data), "records"))

	back, err := DecodeStore(data)
	is.NoErr(err)
	is.True(back.IsEmpty())
	is.Equal(len(back.ThreadStates()), 0)
}

func TestDecodeStoreRequiresIdentity(t *testing.T) {
	is := is.New(t)
	_, err := DecodeStore([]byte(`{"records": []}`))
	is.True(err != nil)
}

func TestDecodeStoreTolerantRecords(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	good := mustMarshal(t, testRecord(0, 0))
	payload := `{"identity": "p", "records": [` + string(good) + `, {"seq": 1}]}`
	back, err := DecodeStore([]byte(payload))
	is.NoErr(err)
	is.Equal(back.Len(), 1)
}

func TestStoreConcurrentMutation(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	s := NewStore("p")
	var wg sync.WaitGroup
	const threads, perThread = 8, 25
	for th := 0; th < threads; th++ {
		wg.Add(1)
		go func(th int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				s.AddRecord(testRecord(uint64(th), i))
				s.UpdateThreadState(ThreadState{ThreadID: th, Seq: i + 1})
			}
		}(th)
	}
	wg.Wait()
	is.Equal(s.Len(), threads*perThread)
	is.Equal(len(s.ThreadStates()), threads)
	for th := 0; th < threads; th++ {
		is.Equal(s.ThreadStates()[th].Seq, perThread)
	}

	// Per-thread append order is preserved even under interleaving.
	seen := make(map[uint64]int)
	for _, rec := range s.Records() {
		is.Equal(rec.Seq, seen[rec.ThreadID])
		seen[rec.ThreadID]++
	}
}

func TestStoreRoundTripViaRawJSON(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	// The persisted full-store shape parses as ordinary JSON too.
	s := NewStore("p")
	s.AddRecord(testRecord(0, 0))
	data, err := s.EncodeJSON()
	is.NoErr(err)
	var f map[string]json.RawMessage
	is.NoErr(json.Unmarshal(data, &f))
	is.Equal(string(f["identity"]), `"p"`)
}
