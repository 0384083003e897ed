package selfplay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/matryer/is"
)

// Most tests run with a small policy bound so fixtures stay readable.
func withPolicyBound(t *testing.T, n int) {
	t.Helper()
	old := PolicyBound()
	SetPolicyBound(n)
	t.Cleanup(func() { SetPolicyBound(old) })
}

func testRecord(threadID uint64, seq int) Record {
	pv := NewPolicyVector()
	for i := range pv {
		pv[i] = uint8(i * 7 % 256)
	}
	return Record{
		Request: testRequest(),
		Result: Result{
			NumMoves:    3,
			Reward:      1,
			UsingModels: []int64{40},
			MoveLog:     "(;GM[1]FF[4];B[dd];W[pp];B[])",
			Policies:    []PolicyVector{pv, NewPolicyVector()},
			Values:      []float32{0.5, -0.25},
		},
		Timestamp: 1700000000,
		ThreadID:  threadID,
		Seq:       seq,
		Priority:  1.5,
	}
}

func TestPolicyVectorJSON(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	pv := PolicyVector{0, 255, 17, 0, 0, 0, 0, 0, 0, 3}
	data, err := json.Marshal(pv)
	is.NoErr(err)
	// An array of small integers, never base64.
	is.Equal(string(data), "[0,255,17,0,0,0,0,0,0,3]")

	var back PolicyVector
	is.NoErr(json.Unmarshal(data, &back))
	is.Equal(back, pv)
}

func TestPolicyVectorDecodeFollowsBound(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 5)

	// A short inner array fills from the front, rest zero.
	var pv PolicyVector
	is.NoErr(json.Unmarshal([]byte("[9,8]"), &pv))
	is.Equal(pv, PolicyVector{9, 8, 0, 0, 0})

	// A longer one is capped at the configured bound.
	is.NoErr(json.Unmarshal([]byte("[1,2,3,4,5,6,7]"), &pv))
	is.Equal(pv, PolicyVector{1, 2, 3, 4, 5})

	// Out-of-byte-range entries are structural failures.
	is.True(json.Unmarshal([]byte("[1,300]"), &pv) != nil)
	is.True(json.Unmarshal([]byte("[1,-1]"), &pv) != nil)
}

func TestResultRoundTrip(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	res := testRecord(1, 0).Result
	data, err := json.Marshal(res)
	is.NoErr(err)
	back, err := DecodeResult(data)
	is.NoErr(err)
	is.Equal(back, res)
}

func TestResultOptionalFields(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	// A record from before provenance and trace logging existed.
	payload := `{
		"num_move": 211, "reward": -1.0, "content": "oldgame",
		"black_never_resign": false, "white_never_resign": true
	}`
	res, err := DecodeResult([]byte(payload))
	is.NoErr(err)
	is.Equal(len(res.UsingModels), 0)
	is.Equal(len(res.Policies), 0)
	is.Equal(len(res.Values), 0)
	is.Equal(res.NumMoves, 211)
	is.True(res.WhiteNeverResign)

	// using_models is always present on the wire when we encode, even
	// if empty.
	data, err := json.Marshal(res)
	is.NoErr(err)
	is.True(strings.Contains(string(data), `"using_models":[]`))

	// But the scalars are required.
	_, err = DecodeResult([]byte(`{"num_move": 1, "reward": 0.0}`))
	is.True(err != nil)
}

func TestRecordRoundTrip(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	rec := testRecord(3, 17)
	data, err := json.Marshal(rec)
	is.NoErr(err)
	back, err := DecodeRecord(data)
	is.NoErr(err)
	is.Equal(back, rec)
}

func TestRecordOfflineOptional(t *testing.T) {
	is := is.New(t)
	withPolicyBound(t, 10)

	rec := testRecord(3, 17)
	data := mustMarshal(t, rec)

	// Strip the offline field; the record still decodes, offline=false.
	var f map[string]json.RawMessage
	is.NoErr(json.Unmarshal(data, &f))
	delete(f, "offline")
	stripped := mustMarshal(t, f)
	back, err := DecodeRecord(stripped)
	is.NoErr(err)
	is.Equal(back.Offline, false)
	is.Equal(back, rec)

	// But pri is required.
	delete(f, "pri")
	_, err = DecodeRecord(mustMarshal(t, f))
	is.True(err != nil)
}

func TestThreadStateRoundTrip(t *testing.T) {
	is := is.New(t)
	ts := ThreadState{ThreadID: 4, Seq: 100, MoveIdx: 52, Black: 40, White: -1}
	data := mustMarshal(t, ts)
	back, err := DecodeThreadState(data)
	is.NoErr(err)
	is.Equal(back, ts)

	_, err = DecodeThreadState([]byte(`{"thread_id": 4, "seq": 1}`))
	is.True(err != nil)
}
