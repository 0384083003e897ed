// Package selfplay defines the message and record protocol that binds
// the coordinator, the game-playing workers, and the training pipeline
// together: work assignments going out, finished-game records and
// per-thread checkpoints coming back, and the JSON batch format they
// are persisted and exchanged in.
//
// Everything here is a wire contract. Field names, required-vs-optional
// rules, and the batch fault-tolerance semantics are load-bearing;
// changing any of them silently breaks compatibility with records
// already on disk.
package selfplay

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"

	"github.com/tenuki-go/tenuki/mcts"
)

// UnsetVersion marks a model-version field as unset.
const UnsetVersion int64 = -1

// ClientType tells a worker which kind of work it should ask for.
type ClientType int

const (
	ClientInvalid ClientType = iota
	ClientSelfplayOnly
	ClientEvalThenSelfplay
)

// ClientControl carries the per-worker operating directives attached to
// every work request. Comparable; == is structural equality.
type ClientControl struct {
	Type ClientType `json:"client_type"`
	// NumGameThreads is the number of game threads the worker should
	// run; -1 means use all available.
	NumGameThreads       int     `json:"num_game_thread_used"`
	BlackResignThreshold float32 `json:"black_resign_thres"`
	WhiteResignThreshold float32 `json:"white_resign_thres"`
	NeverResignProb      float32 `json:"never_resign_prob"`
	PlayerSwap           bool    `json:"player_swap"`
	Async                bool    `json:"async"`
}

// DefaultClientControl mirrors what a coordinator hands out when a
// client has no special configuration.
func DefaultClientControl() ClientControl {
	return ClientControl{
		Type:           ClientSelfplayOnly,
		NumGameThreads: -1,
	}
}

func (c ClientControl) String() string {
	return fmt.Sprintf("[client=%d][async=%v][#th=%d][b_res_th=%v][w_res_th=%v][swap=%v][never_res_pr=%v]",
		c.Type, c.Async, c.NumGameThreads, c.BlackResignThreshold,
		c.WhiteResignThreshold, c.PlayerSwap, c.NeverResignProb)
}

// Assignment names the model version(s) a game uses plus the search
// configuration to use. The version pair encodes three states:
// waiting (both unset), selfplay (black set, white unset; one model
// plays both sides), and an evaluation match (anything else).
type Assignment struct {
	BlackVer   int64        `json:"black_ver"`
	WhiteVer   int64        `json:"white_ver"`
	SearchOpts mcts.Options `json:"mcts_opt"`
}

// NewAssignment returns an assignment in the waiting state.
func NewAssignment() Assignment {
	return Assignment{BlackVer: UnsetVersion, WhiteVer: UnsetVersion}
}

// IsWaiting reports whether no model is assigned yet. By convention
// both versions are set to -1 together; only SetWaiting may produce
// that state.
func (a Assignment) IsWaiting() bool {
	return a.BlackVer < 0
}

// IsSelfplay reports whether a single model plays both sides.
func (a Assignment) IsSelfplay() bool {
	return a.BlackVer >= 0 && a.WhiteVer == UnsetVersion
}

// SetWaiting forces the assignment back to the waiting state. Callers
// must never zero out just one version field to signal waiting.
func (a *Assignment) SetWaiting() {
	a.BlackVer = UnsetVersion
	a.WhiteVer = UnsetVersion
}

func hash64(v int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return xxhash.Sum64(b[:])
}

// Hash combines the two version hashes and the search-option hash with
// the shifted-XOR scheme existing training runs depend on; keep the
// exact combination if hash stability across a run matters.
func (a Assignment) Hash() uint64 {
	h1 := hash64(a.BlackVer)
	h2 := hash64(a.WhiteVer)
	h3 := a.SearchOpts.Hash()
	return h1 ^ (h2 << 1) ^ (h3 << 2)
}

func (a Assignment) String() string {
	switch {
	case a.IsWaiting():
		return "[wait]" + a.SearchOpts.String()
	case a.IsSelfplay():
		return fmt.Sprintf("[selfplay=%d]%s", a.BlackVer, a.SearchOpts)
	default:
		return fmt.Sprintf("[b=%d][w=%d]%s", a.BlackVer, a.WhiteVer, a.SearchOpts)
	}
}

// Request is the full work order sent coordinator → worker.
type Request struct {
	Assignment Assignment    `json:"vers"`
	Control    ClientControl `json:"client_ctrl"`
}

func (r Request) String() string {
	return r.Control.String() + r.Assignment.String()
}

// SeqRequest tags a Request with the coordinator's monotonic sequence
// number so a worker can tell a fresh assignment from a stale re-send.
type SeqRequest struct {
	Seq     int64   `json:"seq"`
	Request Request `json:"request"`
}

// NewSeqRequest returns a SeqRequest with the sequence unset and the
// assignment waiting.
func NewSeqRequest() SeqRequest {
	return SeqRequest{Seq: -1, Request: Request{Assignment: NewAssignment()}}
}

// StaleAgainst reports whether this request is not newer than the
// last sequence number the worker already applied.
func (s SeqRequest) StaleAgainst(lastSeen int64) bool {
	return s.Seq <= lastSeen
}

func (s SeqRequest) String() string {
	return fmt.Sprintf("[seq=%d]%s", s.Seq, s.Request)
}

// VersionMsg is the coordinator's bare announcement of the newest
// model version, published when a model is promoted.
type VersionMsg struct {
	ModelVer int64 `json:"model_ver"`
}

// RestartAction is the coordinator's verdict on a progress report.
type RestartAction int

const (
	RestartNoOp RestartAction = iota
	RestartOnlyWait
	RestartUpdateRequestOnly
	RestartUpdateModel
	RestartUpdateModelAsync
)

func (a RestartAction) String() string {
	switch a {
	case RestartNoOp:
		return "no-op"
	case RestartOnlyWait:
		return "only-wait"
	case RestartUpdateRequestOnly:
		return "update-request-only"
	case RestartUpdateModel:
		return "update-model"
	case RestartUpdateModelAsync:
		return "update-model-async"
	}
	return fmt.Sprintf("restart-action-%d", int(a))
}

// Restart directs one in-flight game. Directives are cooperative: a
// worker acts on them the next time it checks in, and is never
// force-terminated mid-game. UpdateModel asks the worker to finish or
// abandon the current game before swapping; UpdateModelAsync lets the
// current game finish under its original assignment and swaps on the
// next one.
type Restart struct {
	Action  RestartAction `json:"result"`
	GameIdx int           `json:"game_idx"`
}

// NoRestart is the directive meaning "carry on".
var NoRestart = Restart{Action: RestartNoOp, GameIdx: -1}
