// Package coordinator is the server side of the selfplay protocol: it
// hands out sequenced work assignments, gates candidate models on
// evaluation results, consumes flushed record batches and heartbeats,
// and issues restart directives for threads that look stuck or are
// playing an outdated model.
package coordinator

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/tenuki-go/tenuki/archive"
	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/mcts"
	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/stats"
)

// Options configure assignment and gating behavior.
type Options struct {
	// SearchOpts ride along on every assignment.
	SearchOpts mcts.Options
	// Control is the template client control handed to every worker.
	Control selfplay.ClientControl
	// EvalGames is how many evaluation games decide a candidate.
	EvalGames int
	// EvalWinrate is the score fraction a candidate must clear.
	EvalWinrate float64
	// EvalConfidence (percent) makes the gate conservative: the whole
	// confidence interval must sit above EvalWinrate.
	EvalConfidence float64
	// StaleAfter is how long a client may go silent, or a thread may
	// sit on one move, before it draws a restart directive.
	StaleAfter time.Duration
}

// OptionsFromConfig maps the process configuration onto gating options.
func OptionsFromConfig(c *config.Config) Options {
	ctrl := selfplay.DefaultClientControl()
	if c.EvalGames > 0 {
		ctrl.Type = selfplay.ClientEvalThenSelfplay
	}
	ctrl.BlackResignThreshold = float32(c.BlackResignThreshold)
	ctrl.WhiteResignThreshold = float32(c.WhiteResignThreshold)
	ctrl.NeverResignProb = float32(c.NeverResignProb)
	return Options{
		SearchOpts:     mcts.DefaultOptions(),
		Control:        ctrl,
		EvalGames:      c.EvalGames,
		EvalWinrate:    c.EvalWinrate,
		EvalConfidence: c.EvalConfidence,
		StaleAfter:     c.StaleAfter,
	}
}

// clientInfo is what the coordinator remembers about one producer.
type clientInfo struct {
	control  selfplay.ClientControl
	lastSeen time.Time
	states   map[int]selfplay.ThreadState
	// lastProgress tracks when each thread's checkpoint last changed.
	lastProgress map[int]time.Time
	// pending is a directive queued for the client's next heartbeat.
	pending  *selfplay.Restart
	evalDone int
}

// Coordinator holds the model registry, the client table, and the
// training buffer. One lock guards it all; every handler is a short
// critical section.
type Coordinator struct {
	opts Options

	mu        sync.Mutex
	seq       int64
	best      int64
	candidate int64
	winrate   stats.Winrate
	clients   map[string]*clientInfo
	buffer    []selfplay.Record

	arch *archive.Archive

	// onPromote, when set, is called (outside the lock) with each newly
	// promoted version; the serve layer publishes it.
	onPromote func(ver int64)

	now func() time.Time
}

func New(opts Options) *Coordinator {
	return &Coordinator{
		opts:      opts,
		best:      selfplay.UnsetVersion,
		candidate: selfplay.UnsetVersion,
		clients:   make(map[string]*clientInfo),
		now:       time.Now,
	}
}

// WithArchive attaches an archive; every accepted batch is indexed.
func (c *Coordinator) WithArchive(a *archive.Archive) *Coordinator {
	c.arch = a
	return c
}

// OnPromote registers the promotion callback.
func (c *Coordinator) OnPromote(fn func(ver int64)) {
	c.onPromote = fn
}

// PromoteModel installs ver as the current best and bumps the
// assignment sequence so workers pick it up.
func (c *Coordinator) PromoteModel(ver int64) {
	c.mu.Lock()
	c.best = ver
	c.candidate = selfplay.UnsetVersion
	c.winrate = stats.Winrate{}
	c.seq++
	c.mu.Unlock()
	log.Info().Int64("version", ver).Msg("model promoted")
	if c.onPromote != nil {
		c.onPromote(ver)
	}
}

// SubmitCandidate begins evaluating ver against the current best. With
// no best yet the candidate is promoted outright.
func (c *Coordinator) SubmitCandidate(ver int64) {
	c.mu.Lock()
	if c.best == selfplay.UnsetVersion {
		c.mu.Unlock()
		c.PromoteModel(ver)
		return
	}
	c.candidate = ver
	c.winrate = stats.Winrate{}
	c.seq++
	c.mu.Unlock()
	log.Info().Int64("candidate", ver).Msg("candidate under evaluation")
}

// BestModel returns the current best version, -1 when none.
func (c *Coordinator) BestModel() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.best
}

// BufferedRecords drains up to n records from the training buffer, in
// arrival order. n <= 0 drains everything.
func (c *Coordinator) BufferedRecords(n int) []selfplay.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.buffer) {
		n = len(c.buffer)
	}
	out := c.buffer[:n]
	c.buffer = c.buffer[n:]
	return out
}

// HandleFetch answers a worker's assignment request. Waiting when no
// model is ready; an evaluation match against the candidate for
// eval-then-selfplay clients while a gate is open; selfplay on the
// best model otherwise.
func (c *Coordinator) HandleFetch(identity string) selfplay.SeqRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := c.client(identity)
	info.lastSeen = c.now()

	ctrl := c.opts.Control
	assign := selfplay.NewAssignment()
	assign.SearchOpts = c.opts.SearchOpts

	switch {
	case c.best == selfplay.UnsetVersion:
		// Nothing trained yet; workers wait.
	case c.candidate != selfplay.UnsetVersion &&
		ctrl.Type == selfplay.ClientEvalThenSelfplay &&
		c.winrate.Games() < float64(c.opts.EvalGames):
		assign.BlackVer = c.candidate
		assign.WhiteVer = c.best
		// Alternate colors across clients so the candidate does not
		// always hold black.
		ctrl.PlayerSwap = info.evalDone%2 == 1
		info.evalDone++
	default:
		assign.BlackVer = c.best
		assign.WhiteVer = selfplay.UnsetVersion
	}

	info.control = ctrl
	return selfplay.SeqRequest{
		Seq:     c.seq,
		Request: selfplay.Request{Assignment: assign, Control: ctrl},
	}
}

// HandleFlush ingests a flushed store: records go to the training
// buffer (and archive), checkpoints update the client table, and
// evaluation games feed the gate.
func (c *Coordinator) HandleFlush(ctx context.Context, data []byte) error {
	store, err := selfplay.DecodeStore(data)
	if err != nil {
		return err
	}
	records := store.Records()
	states := store.ThreadStates()

	c.mu.Lock()
	info := c.client(store.Identity())
	info.lastSeen = c.now()
	c.mergeStates(info, states)
	for _, rec := range records {
		c.buffer = append(c.buffer, rec)
		c.observeEval(rec)
	}
	promote, reject := c.gateDecision()
	candidate := c.candidate
	wr := c.winrate
	c.mu.Unlock()

	if promote {
		log.Info().Int64("candidate", candidate).
			Float64("winrate", wr.Rate()).
			Float64("elo-delta", stats.EloDelta(wr.Rate())).
			Msg("candidate passed evaluation")
		c.PromoteModel(candidate)
	} else if reject {
		log.Info().Int64("candidate", candidate).
			Float64("winrate", wr.Rate()).
			Msg("candidate rejected")
		c.mu.Lock()
		c.candidate = selfplay.UnsetVersion
		c.winrate = stats.Winrate{}
		c.seq++
		c.mu.Unlock()
	}

	if c.arch != nil && len(records) > 0 {
		if err := c.arch.IndexBatch(ctx, store.Identity(), "", records); err != nil {
			log.Error().Err(err).Msg("archive index failed")
		}
	}
	if c.arch != nil && len(states) > 0 {
		if err := c.arch.UpdateCheckpoints(ctx, store.Identity(), states, c.now()); err != nil {
			log.Error().Err(err).Msg("archive checkpoint update failed")
		}
	}

	log.Debug().Str("identity", store.Identity()).
		Int("records", len(records)).
		Int("states", len(states)).
		Msg("ingested flush")
	return nil
}

// observeEval credits an evaluation game to the open gate. Requires
// c.mu. The candidate's score is counted from the side it actually
// played, honoring player_swap.
func (c *Coordinator) observeEval(rec selfplay.Record) {
	if c.candidate == selfplay.UnsetVersion {
		return
	}
	a := rec.Request.Assignment
	if a.IsWaiting() || a.IsSelfplay() {
		return
	}
	candidateIsBlack := a.BlackVer == c.candidate
	if !candidateIsBlack && a.WhiteVer != c.candidate {
		return
	}
	if rec.Request.Control.PlayerSwap {
		candidateIsBlack = !candidateIsBlack
	}
	switch {
	case rec.Result.Reward == 0:
		c.winrate.Draws++
	case (rec.Result.Reward > 0) == candidateIsBlack:
		c.winrate.Wins++
	default:
		c.winrate.Losses++
	}
}

// gateDecision checks whether the open evaluation gate has seen enough
// games to decide. Requires c.mu.
func (c *Coordinator) gateDecision() (promote, reject bool) {
	if c.candidate == selfplay.UnsetVersion ||
		c.winrate.Games() < float64(c.opts.EvalGames) {
		return false, false
	}
	if c.winrate.BeatsThreshold(c.opts.EvalWinrate, c.opts.EvalConfidence) {
		return true, false
	}
	return false, true
}

// HandleHeartbeat ingests a checkpoint report and answers with one
// directive. A queued directive (from a staleness scan) takes
// priority; otherwise threads playing outdated versions draw a model
// update, async when the client control allows it so the current game
// can finish.
func (c *Coordinator) HandleHeartbeat(data []byte) selfplay.Restart {
	store, err := selfplay.DecodeStore(data)
	if err != nil {
		log.Warn().Err(err).Msg("bad heartbeat payload")
		return selfplay.NoRestart
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.client(store.Identity())
	info.lastSeen = c.now()
	c.mergeStates(info, store.ThreadStates())

	if info.pending != nil {
		d := *info.pending
		info.pending = nil
		return d
	}

	if c.best == selfplay.UnsetVersion {
		return selfplay.Restart{Action: selfplay.RestartOnlyWait, GameIdx: -1}
	}

	// Thread ids in ascending order keep directive targeting
	// deterministic.
	ids := lo.Keys(info.states)
	slices.Sort(ids)
	for _, id := range ids {
		ts := info.states[id]
		if ts.Black == selfplay.UnsetVersion {
			continue
		}
		if !c.versionCurrent(ts) {
			action := selfplay.RestartUpdateModel
			if info.control.Async {
				action = selfplay.RestartUpdateModelAsync
			}
			return selfplay.Restart{Action: action, GameIdx: ts.ThreadID}
		}
	}
	return selfplay.NoRestart
}

// versionCurrent reports whether a thread's checkpoint matches what the
// coordinator is currently assigning. Requires c.mu.
func (c *Coordinator) versionCurrent(ts selfplay.ThreadState) bool {
	if c.candidate != selfplay.UnsetVersion {
		// During evaluation both pairings are in flight.
		if ts.Black == c.candidate && ts.White == c.best {
			return true
		}
	}
	return ts.Black == c.best && ts.White == selfplay.UnsetVersion
}

// ScanStale walks the client table and queues directives for threads
// that have not advanced within StaleAfter, and for clients that have
// gone entirely silent. Returns the queued directives by identity,
// mainly for logging and tests; delivery happens on each client's next
// heartbeat.
func (c *Coordinator) ScanStale() map[string]selfplay.Restart {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	queued := make(map[string]selfplay.Restart)
	for identity, info := range c.clients {
		if info.pending != nil {
			continue
		}
		var d *selfplay.Restart
		if now.Sub(info.lastSeen) > c.opts.StaleAfter {
			d = &selfplay.Restart{Action: selfplay.RestartUpdateRequestOnly, GameIdx: -1}
		} else {
			ids := lo.Keys(info.lastProgress)
			slices.Sort(ids)
			for _, id := range ids {
				if at := info.lastProgress[id]; now.Sub(at) > c.opts.StaleAfter {
					action := selfplay.RestartUpdateModel
					if info.control.Async {
						action = selfplay.RestartUpdateModelAsync
					}
					d = &selfplay.Restart{Action: action, GameIdx: id}
					break
				}
			}
		}
		if d != nil {
			info.pending = d
			queued[identity] = *d
			log.Warn().Str("identity", identity).
				Str("action", d.Action.String()).
				Int("game-idx", d.GameIdx).
				Msg("queued directive for stale client")
		}
	}
	return queued
}

// client returns (creating if needed) the table entry. Requires c.mu.
func (c *Coordinator) client(identity string) *clientInfo {
	info, ok := c.clients[identity]
	if !ok {
		info = &clientInfo{
			control:      c.opts.Control,
			states:       make(map[int]selfplay.ThreadState),
			lastProgress: make(map[int]time.Time),
		}
		c.clients[identity] = info
	}
	return info
}

// mergeStates applies a checkpoint report, tracking per-thread
// progress times. Requires c.mu.
func (c *Coordinator) mergeStates(info *clientInfo, states map[int]selfplay.ThreadState) {
	now := c.now()
	for id, ts := range states {
		if prev, ok := info.states[id]; !ok || prev != ts {
			info.lastProgress[id] = now
		}
		info.states[id] = ts
	}
}
