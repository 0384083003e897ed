package selfplay

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Store is the record aggregate owned by one producing process: the
// latest checkpoint per game thread, and an append-only log of
// finished games. Multiple game threads mutating one store
// concurrently is the steady state, so every operation takes the
// store's lock. Encoding works on snapshots taken under the lock, so a
// large encode never blocks the game threads.
type Store struct {
	mu       sync.Mutex
	identity string
	states   map[int]ThreadState
	records  []Record
}

// NewStore creates an empty store for the given producer identity.
func NewStore(identity string) *Store {
	return &Store{
		identity: identity,
		states:   make(map[int]ThreadState),
	}
}

func (s *Store) Identity() string {
	return s.identity
}

// AddRecord appends a finished game.
func (s *Store) AddRecord(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// UpdateThreadState replaces the checkpoint for the state's thread id.
// Last write wins.
func (s *Store) UpdateThreadState(ts ThreadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[ts.ThreadID] = ts
}

// Clear empties both the record log and the checkpoint table.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[int]ThreadState)
	s.records = nil
}

// Drain swaps the record log out of the store and returns it together
// with a snapshot of the checkpoint table, all under one lock
// acquisition. Records appended after the swap belong to the next
// drain; the checkpoint table stays in place since it always holds the
// current position per thread.
func (s *Store) Drain() ([]Record, map[int]ThreadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records
	s.records = nil
	states := make(map[int]ThreadState, len(s.states))
	for id, ts := range s.states {
		states[id] = ts
	}
	return records, states
}

// Requeue puts drained records back at the head of the log, ahead of
// anything appended since the drain. Used when shipping a drained
// batch fails and the records must survive for the next attempt.
func (s *Store) Requeue(records []Record) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(records, s.records...)
}

// IsEmpty reports whether there are no records. Checkpoints alone do
// not make a store non-empty.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) == 0
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a snapshot copy of the record log.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// RecordRange returns a snapshot copy of records[from:to). The bounds
// are clamped to the log.
func (s *Store) RecordRange(from, to int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if to > len(s.records) {
		to = len(s.records)
	}
	if from >= to {
		return []Record{}
	}
	out := make([]Record, to-from)
	copy(out, s.records[from:to])
	return out
}

// ThreadStates returns a snapshot copy of the checkpoint table.
func (s *Store) ThreadStates() map[int]ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]ThreadState, len(s.states))
	for id, ts := range s.states {
		out[id] = ts
	}
	return out
}

// storeWire is the full-store persisted shape. The two arrays are
// omitted when empty, and both are optional on read.
type storeWire struct {
	Identity string        `json:"identity"`
	States   []ThreadState `json:"states,omitempty"`
	Records  []Record      `json:"records,omitempty"`
}

// EncodeJSON serializes the whole store as a single object. The
// snapshot is taken under the lock; the encode itself runs outside it.
// States are sorted by thread id so output is deterministic.
func (s *Store) EncodeJSON() ([]byte, error) {
	s.mu.Lock()
	w := storeWire{Identity: s.identity}
	if len(s.states) > 0 {
		w.States = make([]ThreadState, 0, len(s.states))
		for _, ts := range s.states {
			w.States = append(w.States, ts)
		}
	}
	if len(s.records) > 0 {
		w.Records = make([]Record, len(s.records))
		copy(w.Records, s.records)
	}
	s.mu.Unlock()

	sort.Slice(w.States, func(i, j int) bool {
		return w.States[i].ThreadID < w.States[j].ThreadID
	})
	return json.Marshal(w)
}

// DecodeStore parses the full-store object shape. identity is
// required; states and records are optional. Each state entry
// overwrites any prior entry for its thread id. Record elements get
// the same per-element fault tolerance as DecodeBatch.
func DecodeStore(data []byte) (*Store, error) {
	f, err := decodeFields(data)
	if err != nil {
		return nil, err
	}
	var identity string
	if err := reqField(f, "identity", &identity); err != nil {
		return nil, err
	}
	s := NewStore(identity)
	if rawStates, ok := f["states"]; ok {
		var states []ThreadState
		if err := json.Unmarshal(rawStates, &states); err != nil {
			return nil, fmt.Errorf("field states: %w", err)
		}
		for _, ts := range states {
			s.states[ts.ThreadID] = ts
		}
	}
	if rawRecords, ok := f["records"]; ok {
		records, err := DecodeBatch(rawRecords)
		if err != nil {
			return nil, fmt.Errorf("field records: %w", err)
		}
		s.records = records
	}
	return s, nil
}
