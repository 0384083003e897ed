package selfplay

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tenuki-go/tenuki/board"
)

// policyBound is the length of a quantized policy vector: one slot per
// board point plus the pass slot. It follows the board geometry the
// process is configured for; set it once at startup, before any record
// is decoded.
var policyBound = board.Default.PolicyLen()

// SetPolicyBound configures the policy-vector length for this process.
func SetPolicyBound(n int) {
	policyBound = n
}

// PolicyBound returns the configured policy-vector length.
func PolicyBound() int {
	return policyBound
}

// PolicyVector is the quantized search-policy distribution for one
// move: one byte of probability mass (0-255, precision ~1/255) per
// slot. No slot sums to anything in particular; consumers wanting a
// true distribution divide by 255 or by the sum themselves.
type PolicyVector []uint8

// NewPolicyVector allocates a zeroed vector of the configured length.
func NewPolicyVector() PolicyVector {
	return make(PolicyVector, policyBound)
}

// MarshalJSON writes the vector as a JSON array of small integers,
// never as the base64 string encoding/json would use for a byte slice.
func (p PolicyVector) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(p)*4+2)
	buf = append(buf, '[')
	for i, v := range p {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON reads an array of integers into a vector of the
// configured length, filling from the front. Extra entries beyond the
// configured bound are dropped; missing ones stay zero. Entries must
// fit in a byte.
func (p *PolicyVector) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := make(PolicyVector, policyBound)
	for i, e := range raw {
		if i >= policyBound {
			break
		}
		if e < 0 || e > 255 {
			return fmt.Errorf("policy entry %d: %d out of byte range", i, e)
		}
		v[i] = uint8(e)
	}
	*p = v
	return nil
}

// Result is the outcome of one finished game. Reward is the scalar
// outcome from black's perspective. Policies and Values, when
// recorded, hold one entry per recorded move; either may be absent
// entirely for games that predate trace logging.
type Result struct {
	NumMoves         int            `json:"num_move"`
	Reward           float32        `json:"reward"`
	BlackNeverResign bool           `json:"black_never_resign"`
	WhiteNeverResign bool           `json:"white_never_resign"`
	UsingModels      []int64        `json:"using_models"`
	MoveLog          string         `json:"content"`
	Policies         []PolicyVector `json:"policies,omitempty"`
	Values           []float32      `json:"values,omitempty"`
}

// MarshalJSON keeps using_models an array (never null) on the wire.
func (r Result) MarshalJSON() ([]byte, error) {
	type wire Result
	w := wire(r)
	if w.UsingModels == nil {
		w.UsingModels = []int64{}
	}
	return json.Marshal(w)
}

func (r Result) String() string {
	return fmt.Sprintf("[num_move=%d][models=%v][reward=%v][b_no_res=%v][w_no_res=%v] len(content)=%d",
		r.NumMoves, r.UsingModels, r.Reward, r.BlackNeverResign,
		r.WhiteNeverResign, len(r.MoveLog))
}

// Record is one finished game bound to the request that produced it,
// plus production metadata. It is created once at game completion and
// immutable from then on; every downstream consumer reads it as-is.
// Seq is the producing thread's local game counter, unrelated to
// SeqRequest.Seq.
type Record struct {
	Request   Request `json:"request"`
	Result    Result  `json:"result"`
	Timestamp uint64  `json:"timestamp"`
	ThreadID  uint64  `json:"thread_id"`
	Seq       int     `json:"seq"`
	Priority  float32 `json:"pri"`
	Offline   bool    `json:"offline"`
}

func (r Record) String() string {
	return fmt.Sprintf("[t=%d][id=%d][seq=%d][pri=%v][offline=%v]\n%s\n%s",
		r.Timestamp, r.ThreadID, r.Seq, r.Priority, r.Offline,
		r.Request, r.Result)
}

// ThreadState is a worker thread's progress snapshot: which game it is
// on, which move within it, and the versions it is playing. Only the
// owning thread writes it; the coordinator reads it for liveness and
// staleness decisions. Comparable.
type ThreadState struct {
	ThreadID int   `json:"thread_id"`
	Seq      int   `json:"seq"`
	MoveIdx  int   `json:"move_idx"`
	Black    int64 `json:"black"`
	White    int64 `json:"white"`
}

// NewThreadState returns a state with no thread bound yet.
func NewThreadState() ThreadState {
	return ThreadState{ThreadID: -1, Black: UnsetVersion, White: UnsetVersion}
}

func (t ThreadState) String() string {
	return fmt.Sprintf("[th_id=%d][seq=%d][mv_idx=%d][black=%d][white=%d]",
		t.ThreadID, t.Seq, t.MoveIdx, t.Black, t.White)
}
