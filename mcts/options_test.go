package mcts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsJSONRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	opts.Seed = 42
	opts.Verbose = true

	data, err := json.Marshal(opts)
	assert.Nil(t, err)

	var got Options
	err = json.Unmarshal(data, &got)
	assert.Nil(t, err)
	assert.Equal(t, opts, got)
}

func TestOptionsFieldNames(t *testing.T) {
	data, err := json.Marshal(DefaultOptions())
	assert.Nil(t, err)
	expected := `{"num_threads":16,"num_rollouts_per_thread":100,"seed":0,` +
		`"c_puct":1.5,"virtual_loss":5,"persistent_tree":false,` +
		`"use_value_network":true,"verbose":false}`
	assert.JSONEq(t, expected, string(data))
}

func TestHashStability(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	assert.Equal(t, a.Hash(), b.Hash())

	b.RolloutsPerThread = 200
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashSensitiveToEveryKnob(t *testing.T) {
	base := DefaultOptions()
	variants := []Options{
		{NumThreads: 1},
		{RolloutsPerThread: 1},
		{Seed: 1},
		{PuctC: 0.1},
		{VirtualLoss: 1},
		{PersistentTree: true},
		{UseValueNetwork: false},
		{Verbose: true},
	}
	seen := map[uint64]bool{base.Hash(): true}
	for _, v := range variants {
		h := v.Hash()
		assert.False(t, seen[h], "hash collision for %s", v)
		seen[h] = true
	}
}
