// Package mcts defines the search configuration that rides along with a
// work assignment. The protocol treats it as opaque: it is carried,
// compared, and hashed, never interpreted. The search engine that
// consumes it lives outside this repo.
package mcts

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash"
)

// Options is the full set of knobs handed to the search engine for one
// game. Comparable so assignments can be compared with ==.
type Options struct {
	NumThreads        int     `json:"num_threads"`
	RolloutsPerThread int     `json:"num_rollouts_per_thread"`
	Seed              int64   `json:"seed"`
	PuctC             float32 `json:"c_puct"`
	VirtualLoss       int     `json:"virtual_loss"`
	PersistentTree    bool    `json:"persistent_tree"`
	UseValueNetwork   bool    `json:"use_value_network"`
	Verbose           bool    `json:"verbose"`
}

// DefaultOptions returns the settings a fresh coordinator hands out
// before any tuning.
func DefaultOptions() Options {
	return Options{
		NumThreads:        16,
		RolloutsPerThread: 100,
		PuctC:             1.5,
		VirtualLoss:       5,
		UseValueNetwork:   true,
	}
}

// Hash returns a stable hash of the options, used as a component of the
// assignment hash. Stable across processes for the same option values.
func (o Options) Hash() uint64 {
	// json.Marshal of a flat struct has deterministic field order.
	b, _ := json.Marshal(o)
	return xxhash.Sum64(b)
}

func (o Options) String() string {
	return fmt.Sprintf("[#th=%d][rollouts=%d][c_puct=%.2f][vl=%d][tree=%v][value=%v]",
		o.NumThreads, o.RolloutsPerThread, o.PuctC, o.VirtualLoss,
		o.PersistentTree, o.UseValueNetwork)
}
