package selfplay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by every decode failure caused by a
// required field being absent.
var ErrMissingField = errors.New("missing required field")

// Every entity decodes through an explicit function below that states
// which fields are required and which are optional with what default.
// A structural failure (required field missing or mistyped) fails the
// enclosing decode; whether that failure is fatal is the caller's
// call. Batch import drops the one bad element and moves on.

func decodeFields(data []byte) (map[string]json.RawMessage, error) {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func reqField[T any](f map[string]json.RawMessage, name string, dst *T) error {
	raw, ok := f[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}

// optField leaves *dst untouched when the field is absent, so the
// caller's zero value (or preset default) stands.
func optField[T any](f map[string]json.RawMessage, name string, dst *T) error {
	raw, ok := f[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}

func decodeClientControl(data []byte, swapOptional bool) (ClientControl, error) {
	var c ClientControl
	f, err := decodeFields(data)
	if err != nil {
		return c, err
	}
	if err := reqField(f, "client_type", &c.Type); err != nil {
		return c, err
	}
	if err := reqField(f, "num_game_thread_used", &c.NumGameThreads); err != nil {
		return c, err
	}
	if err := reqField(f, "black_resign_thres", &c.BlackResignThreshold); err != nil {
		return c, err
	}
	if err := reqField(f, "white_resign_thres", &c.WhiteResignThreshold); err != nil {
		return c, err
	}
	if err := reqField(f, "never_resign_prob", &c.NeverResignProb); err != nil {
		return c, err
	}
	// player_swap postdates the selfplay-only wire format; payloads
	// from that era may omit it, but only for selfplay assignments.
	if swapOptional {
		err = optField(f, "player_swap", &c.PlayerSwap)
	} else {
		err = reqField(f, "player_swap", &c.PlayerSwap)
	}
	if err != nil {
		return c, err
	}
	if err := optField(f, "async", &c.Async); err != nil {
		return c, err
	}
	return c, nil
}

func decodeAssignment(data []byte) (Assignment, error) {
	var a Assignment
	f, err := decodeFields(data)
	if err != nil {
		return a, err
	}
	if err := reqField(f, "black_ver", &a.BlackVer); err != nil {
		return a, err
	}
	if err := reqField(f, "white_ver", &a.WhiteVer); err != nil {
		return a, err
	}
	if err := reqField(f, "mcts_opt", &a.SearchOpts); err != nil {
		return a, err
	}
	return a, nil
}

// DecodeRequest parses a Request. The assignment is parsed first; its
// selfplay-ness decides whether player_swap is required in the control
// block (see decodeClientControl).
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	f, err := decodeFields(data)
	if err != nil {
		return r, err
	}
	rawVers, ok := f["vers"]
	if !ok {
		return r, fmt.Errorf("%w: vers", ErrMissingField)
	}
	if r.Assignment, err = decodeAssignment(rawVers); err != nil {
		return r, fmt.Errorf("vers: %w", err)
	}
	rawCtrl, ok := f["client_ctrl"]
	if !ok {
		return r, fmt.Errorf("%w: client_ctrl", ErrMissingField)
	}
	if r.Control, err = decodeClientControl(rawCtrl, r.Assignment.IsSelfplay()); err != nil {
		return r, fmt.Errorf("client_ctrl: %w", err)
	}
	return r, nil
}

func (r *Request) UnmarshalJSON(data []byte) error {
	dec, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	*r = dec
	return nil
}

// DecodeSeqRequest parses a SeqRequest; both fields are required.
func DecodeSeqRequest(data []byte) (SeqRequest, error) {
	s := NewSeqRequest()
	f, err := decodeFields(data)
	if err != nil {
		return s, err
	}
	if err := reqField(f, "request", &s.Request); err != nil {
		return s, err
	}
	if err := reqField(f, "seq", &s.Seq); err != nil {
		return s, err
	}
	return s, nil
}

func (s *SeqRequest) UnmarshalJSON(data []byte) error {
	dec, err := DecodeSeqRequest(data)
	if err != nil {
		return err
	}
	*s = dec
	return nil
}

// DecodeResult parses a Result. using_models, policies, and values are
// optional: records written before multi-model provenance or trace
// logging existed simply lack them. Policy bytes are taken as-is, no
// renormalization.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	f, err := decodeFields(data)
	if err != nil {
		return r, err
	}
	if err := reqField(f, "num_move", &r.NumMoves); err != nil {
		return r, err
	}
	if err := reqField(f, "reward", &r.Reward); err != nil {
		return r, err
	}
	if err := reqField(f, "content", &r.MoveLog); err != nil {
		return r, err
	}
	if err := reqField(f, "black_never_resign", &r.BlackNeverResign); err != nil {
		return r, err
	}
	if err := reqField(f, "white_never_resign", &r.WhiteNeverResign); err != nil {
		return r, err
	}
	if err := optField(f, "using_models", &r.UsingModels); err != nil {
		return r, err
	}
	if err := optField(f, "policies", &r.Policies); err != nil {
		return r, err
	}
	if err := optField(f, "values", &r.Values); err != nil {
		return r, err
	}
	return r, nil
}

func (r *Result) UnmarshalJSON(data []byte) error {
	dec, err := DecodeResult(data)
	if err != nil {
		return err
	}
	*r = dec
	return nil
}

// DecodeRecord parses a single Record; offline is the only optional
// field (default false).
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	f, err := decodeFields(data)
	if err != nil {
		return r, err
	}
	if err := reqField(f, "request", &r.Request); err != nil {
		return r, err
	}
	if err := reqField(f, "result", &r.Result); err != nil {
		return r, err
	}
	if err := reqField(f, "timestamp", &r.Timestamp); err != nil {
		return r, err
	}
	if err := reqField(f, "thread_id", &r.ThreadID); err != nil {
		return r, err
	}
	if err := reqField(f, "seq", &r.Seq); err != nil {
		return r, err
	}
	if err := reqField(f, "pri", &r.Priority); err != nil {
		return r, err
	}
	if err := optField(f, "offline", &r.Offline); err != nil {
		return r, err
	}
	return r, nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	*r = dec
	return nil
}

// DecodeThreadState parses a ThreadState; every field is required.
func DecodeThreadState(data []byte) (ThreadState, error) {
	var t ThreadState
	f, err := decodeFields(data)
	if err != nil {
		return t, err
	}
	if err := reqField(f, "thread_id", &t.ThreadID); err != nil {
		return t, err
	}
	if err := reqField(f, "seq", &t.Seq); err != nil {
		return t, err
	}
	if err := reqField(f, "move_idx", &t.MoveIdx); err != nil {
		return t, err
	}
	if err := reqField(f, "black", &t.Black); err != nil {
		return t, err
	}
	if err := reqField(f, "white", &t.White); err != nil {
		return t, err
	}
	return t, nil
}

func (t *ThreadState) UnmarshalJSON(data []byte) error {
	dec, err := DecodeThreadState(data)
	if err != nil {
		return err
	}
	*t = dec
	return nil
}
